// Package main implements the gateway.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/udhos/tokenproxy/authclient"
	"github.com/udhos/tokenproxy/config"
	"github.com/udhos/tokenproxy/downstream"
	"github.com/udhos/tokenproxy/gateway"
	"github.com/udhos/tokenproxy/issuer"
	"github.com/udhos/tokenproxy/logging"
	"github.com/udhos/tokenproxy/metrics"
	"github.com/udhos/tokenproxy/ratelimit"
	"github.com/udhos/tokenproxy/token"
	"github.com/udhos/tokenproxy/transport"
)

func main() {

	var envFile, listenAddr string

	flag.StringVar(&envFile, "envFile", ".env", "optional env file, environment variables take precedence")
	flag.StringVar(&listenAddr, "listen", "", "listen address, overrides LISTEN_ADDR")

	flag.Parse()

	cfg, errConfig := config.Load(envFile)
	if errConfig != nil {
		logrus.Fatalf("config: %v", errConfig)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	logger, errLog := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if errLog != nil {
		logrus.Fatalf("logger: %v", errLog)
	}
	logf := logging.Logf(logger)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.WithFields(logrus.Fields{
		"api_url":     cfg.APIURL,
		"issuer_mode": cfg.IssuerMode,
		"rate_limit":  cfg.RateLimit,
	}).Info("starting")

	transportOptions := transport.Options{
		ProxyURL:      cfg.ProxyURL,
		ProxyUsername: cfg.ProxyUsername,
		ProxyPassword: cfg.ProxyPassword,
	}

	authOptions := transportOptions
	authOptions.Timeout = cfg.AuthTimeoutDuration()
	authHTTP, errAuth := transport.New(authOptions)
	if errAuth != nil {
		logger.Fatalf("auth transport: %v", errAuth)
	}

	requestOptions := transportOptions
	requestOptions.Timeout = cfg.RequestTimeoutDuration()
	requestHTTP, errRequest := transport.New(requestOptions)
	if errRequest != nil {
		logger.Fatalf("request transport: %v", errRequest)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var iss issuer.Issuer
	switch cfg.IssuerMode {
	case config.IssuerClientCredentials:
		iss = issuer.NewClientCredentials(issuer.ClientCredentialsOptions{
			TokenURL:     cfg.TokenEndpoint(),
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scope:        cfg.Scope,
			HTTPClient:   authHTTP,
			Logf:         logf,
			Debug:        cfg.Debug,
		})
	default:
		iss = issuer.NewUsers(issuer.UsersOptions{
			BaseURL:    cfg.BaseURL,
			Username:   cfg.APIUsername,
			Password:   cfg.APIPassword,
			HTTPClient: authHTTP,
			Logf:       logf,
			Debug:      cfg.Debug,
		})
	}

	client := authclient.New(authclient.Options{
		Issue:          iss.RequestNewToken,
		Store:          token.NewStore(token.StoreOptions{}),
		HTTPClient:     requestHTTP,
		RefreshTimeout: cfg.AuthTimeoutDuration(),
		Metrics:        m,
		Logf:           logf,
		Debug:          cfg.Debug,
	})

	ds, errDownstream := downstream.New(downstream.Options{
		BaseURL:    cfg.APIURL,
		HTTPClient: client,
		Metrics:    m,
	})
	if errDownstream != nil {
		logger.Fatalf("downstream: %v", errDownstream)
	}

	limiter, errLimiter := ratelimit.New(cfg.RateLimit, cfg.RateLimitPermits, cfg.RateLimitWindow)
	if errLimiter != nil {
		logger.Fatalf("rate limit: %s: %v", cfg.RateLimit, errLimiter)
	}

	server := gateway.NewServer(gateway.Options{
		Addr:       cfg.ListenAddr,
		Downstream: ds,
		Limiter:    limiter,
		Logger:     logger,
		Gatherer:   registry,
		Metrics:    m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errRun := server.Run(ctx)

	if err := ratelimit.Close(limiter); err != nil {
		logger.Warnf("rate limit close: %v", err)
	}

	if errRun != nil {
		logger.Fatalf("gateway: %v", errRun)
	}

	logger.Info("stopped")
}
