// Package config loads gateway configuration from an optional .env file and
// the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Issuer modes.
const (
	IssuerUsers             = "users"
	IssuerClientCredentials = "client_credentials"
)

// Defaults.
const (
	DefaultAuthTimeout      = 30
	DefaultRequestTimeout   = 60
	DefaultListenAddr       = ":8080"
	DefaultRateLimitPermits = 10
	DefaultRateLimitWindow  = 10 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// Config is the gateway configuration.
type Config struct {
	// BaseURL is the token issuer base address.
	BaseURL string `validate:"omitempty,url"`

	// APIURL is the downstream service base address.
	APIURL string `validate:"required,url"`

	APIUsername string
	APIPassword string

	// Timeouts in seconds.
	AuthTimeout    int `validate:"min=1,max=60"`
	RequestTimeout int `validate:"min=1,max=60"`

	ProxyURL      string `validate:"omitempty,url"`
	ProxyUsername string
	ProxyPassword string

	IssuerMode   string `validate:"oneof=users client_credentials"`
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string `validate:"omitempty,url"`

	// RateLimit selects the limiter, see ratelimit.New.
	RateLimit        string
	RateLimitPermits int           `validate:"min=1"`
	RateLimitWindow  time.Duration `validate:"gt=0"`

	ListenAddr string `validate:"required"`
	LogLevel   string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat  string `validate:"oneof=text json"`
	Debug      bool
}

// AuthTimeoutDuration returns AuthTimeout as a duration.
func (c Config) AuthTimeoutDuration() time.Duration {
	return time.Duration(c.AuthTimeout) * time.Second
}

// RequestTimeoutDuration returns RequestTimeout as a duration.
func (c Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// DefaultTokenPath is appended to BaseURL when TOKEN_URL is unset in
// client_credentials mode.
const DefaultTokenPath = "oauth/token"

// TokenEndpoint returns TokenURL, or BaseURL joined with DefaultTokenPath.
func (c Config) TokenEndpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + DefaultTokenPath
}

// Load reads envFile, if it exists, then the environment, and validates the result.
// Variables already present in the environment take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, errStat := os.Stat(envFile); errStat == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
	}

	c, err := FromEnv()
	if err != nil {
		return c, err
	}

	return c, c.Validate()
}

// FromEnv reads the configuration from the environment without validating it.
func FromEnv() (Config, error) {
	var errs []error

	c := Config{
		BaseURL:       os.Getenv("BASE_URL"),
		APIURL:        os.Getenv("API_URL"),
		APIUsername:   os.Getenv("API_USERNAME"),
		APIPassword:   os.Getenv("API_PASSWORD"),
		ProxyURL:      os.Getenv("PROXY_URL"),
		ProxyUsername: os.Getenv("PROXY_USERNAME"),
		ProxyPassword: os.Getenv("PROXY_PASSWORD"),
		IssuerMode:    envString("ISSUER_MODE", IssuerUsers),
		ClientID:      os.Getenv("CLIENT_ID"),
		ClientSecret:  os.Getenv("CLIENT_SECRET"),
		Scope:         os.Getenv("SCOPE"),
		TokenURL:      os.Getenv("TOKEN_URL"),
		RateLimit:     os.Getenv("RATE_LIMIT"),
		ListenAddr:    envString("LISTEN_ADDR", DefaultListenAddr),
		LogLevel:      strings.ToLower(envString("LOG_LEVEL", DefaultLogLevel)),
		LogFormat:     strings.ToLower(envString("LOG_FORMAT", DefaultLogFormat)),
	}

	var err error

	if c.AuthTimeout, err = envInt("AUTH_TIMEOUT", DefaultAuthTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout, err = envInt("REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimitPermits, err = envInt("RATE_LIMIT_PERMITS", DefaultRateLimitPermits); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow); err != nil {
		errs = append(errs, err)
	}
	if c.Debug, err = envBool("DEBUG", false); err != nil {
		errs = append(errs, err)
	}

	return c, errors.Join(errs...)
}

var validate = validator.New()

// Validate checks field constraints and the credentials required by IssuerMode.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.IssuerMode {
	case IssuerUsers:
		if c.BaseURL == "" {
			return errors.New("invalid config: BASE_URL is required for issuer mode users")
		}
		if c.APIUsername == "" || c.APIPassword == "" {
			return errors.New("invalid config: API_USERNAME and API_PASSWORD are required for issuer mode users")
		}
	case IssuerClientCredentials:
		if c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("invalid config: CLIENT_ID and CLIENT_SECRET are required for issuer mode client_credentials")
		}
		if c.TokenURL == "" && c.BaseURL == "" {
			return errors.New("invalid config: TOKEN_URL or BASE_URL is required for issuer mode client_credentials")
		}
	}

	if c.ProxyPassword != "" && c.ProxyUsername == "" {
		return errors.New("invalid config: PROXY_PASSWORD requires PROXY_USERNAME")
	}

	return nil
}

func envString(name, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultValue
}

func envInt(name string, defaultValue int) (int, error) {
	str := strings.TrimSpace(os.Getenv(name))
	if str == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return defaultValue, fmt.Errorf("env var %s=%q: %w", name, str, err)
	}
	return v, nil
}

func envBool(name string, defaultValue bool) (bool, error) {
	str := strings.TrimSpace(os.Getenv(name))
	if str == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(str)
	if err != nil {
		return defaultValue, fmt.Errorf("env var %s=%q: %w", name, str, err)
	}
	return v, nil
}

// envDuration accepts a Go duration ("10s") or a plain number of seconds.
func envDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	str := strings.TrimSpace(os.Getenv(name))
	if str == "" {
		return defaultValue, nil
	}
	if secs, errInt := strconv.Atoi(str); errInt == nil {
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(str)
	if err != nil {
		return defaultValue, fmt.Errorf("env var %s=%q: %w", name, str, err)
	}
	return v, nil
}
