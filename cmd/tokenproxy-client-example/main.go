// Package main implements the tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/udhos/tokenproxy/authclient"
	"github.com/udhos/tokenproxy/downstream"
	"github.com/udhos/tokenproxy/issuer"
	"github.com/udhos/tokenproxy/token"
	"github.com/udhos/tokenproxy/transport"
)

type application struct {
	authURL             string
	username            string
	password            string
	targetURL           string
	endpoint            string
	method              string
	body                string
	count               int
	graceSeconds        int
	interval            time.Duration
	timeout             time.Duration
	disableSingleflight bool
	concurrent          bool
	debug               bool
}

func main() {

	app := application{}

	flag.StringVar(&app.authURL, "authURL", "http://localhost:8081", "token issuer base URL")
	flag.StringVar(&app.username, "username", "admin", "username")
	flag.StringVar(&app.password, "password", "admin", "password")
	flag.StringVar(&app.targetURL, "targetURL", "http://localhost:8082", "downstream base URL")
	flag.StringVar(&app.endpoint, "endpoint", "entity/action?page=1", "endpoint relative to targetURL")
	flag.StringVar(&app.method, "method", "GET", "GET or POST")
	flag.StringVar(&app.body, "body", "{}", "JSON body for POST")
	flag.IntVar(&app.count, "count", 2, "how many requests to send")
	flag.IntVar(&app.graceSeconds, "graceSeconds", 60, "refresh token this many seconds before expiry")
	flag.DurationVar(&app.interval, "interval", 2*time.Second, "interval between sends")
	flag.DurationVar(&app.timeout, "timeout", 30*time.Second, "request timeout")
	flag.BoolVar(&app.disableSingleflight, "disableSingleflight", false, "disable singleflight")
	flag.BoolVar(&app.concurrent, "concurrent", false, "concurrent requests")
	flag.BoolVar(&app.debug, "debug", false, "enable debug logging")

	flag.Parse()

	httpClient, errTransport := transport.New(transport.Options{Timeout: app.timeout})
	if errTransport != nil {
		log.Fatalf("transport: %v", errTransport)
	}

	users := issuer.NewUsers(issuer.UsersOptions{
		BaseURL:    app.authURL,
		Username:   app.username,
		Password:   app.password,
		HTTPClient: httpClient,
		Debug:      app.debug,
	})

	grace := time.Duration(app.graceSeconds) * time.Second
	if grace == 0 {
		grace = -1 // zero means default in StoreOptions
	}

	client := authclient.New(authclient.Options{
		Issue:               users.RequestNewToken,
		Store:               token.NewStore(token.StoreOptions{GracePeriod: grace}),
		HTTPClient:          httpClient,
		DisableSingleFlight: app.disableSingleflight,
		Debug:               app.debug,
	})

	ds, errDownstream := downstream.New(downstream.Options{
		BaseURL:    app.targetURL,
		HTTPClient: client,
	})
	if errDownstream != nil {
		log.Fatalf("downstream: %v", errDownstream)
	}

	if app.concurrent {
		//
		// concurrent requests
		//
		var wg sync.WaitGroup
		for i := 1; i <= app.count; i++ {
			j := i
			wg.Add(1)
			go func() {
				send(&app, ds, j)
				wg.Done()
			}()
		}
		wg.Wait()
		return
	}

	//
	// non-concurrent requests
	//
	for i := 1; i <= app.count; i++ {
		send(&app, ds, i)
	}
}

func send(app *application, ds *downstream.Client, i int) {
	label := fmt.Sprintf("request %d/%d", i, app.count)

	var result downstream.Result[json.RawMessage]
	var err error

	switch app.method {
	case "POST":
		result, err = downstream.Post[json.RawMessage](context.TODO(), ds, app.endpoint, json.RawMessage(app.body))
	default:
		result, err = downstream.Get[json.RawMessage](context.TODO(), ds, app.endpoint)
	}

	if err != nil && result.StatusCode == 0 {
		log.Fatalf("%s: %v", label, err)
	}
	if err != nil {
		log.Printf("%s: %v", label, err)
	}

	log.Printf("%s: status: %d", label, result.StatusCode)

	log.Printf("%s: body:", label)
	fmt.Println(result.RawBody)

	if i < app.count && app.interval != 0 {
		log.Printf("%s: sleeping for interval=%v", label, app.interval)
		time.Sleep(app.interval)
	}
}
