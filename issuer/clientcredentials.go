package issuer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cc "github.com/udhos/oauth2clientcredentials/clientcredentials"

	"github.com/udhos/tokenproxy/token"
)

// ClientCredentialsOptions define options for the oauth2 client-credentials issuer.
type ClientCredentialsOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string

	// HTTPClient is the HTTP client to use to make requests.
	// If nil, http.DefaultClient is used.
	HTTPClient HTTPDoer

	// IsTokenStatusCodeOk defines custom function to check whether the
	// token server response status is OK. A non-nil error rejects the response.
	// If undefined, cc.DefaultIsStatusCodeOK accepts any 2xx status.
	IsTokenStatusCodeOk func(status int) error

	// DefaultLifetime is applied when the server omits expires_in.
	// Zero keeps the sentinel rule: no expires_in means no usable token.
	DefaultLifetime time.Duration

	// Time source used to compute absolute expiry.
	// If unspecified, defaults to time.Now().
	TimeSource func() time.Time

	// Logging function, if undefined defaults to log.Printf
	Logf func(format string, v ...any)

	// Enable debug logging.
	Debug bool
}

// ClientCredentials requests tokens with the oauth2 client-credentials grant.
type ClientCredentials struct {
	options ClientCredentialsOptions
	log     logger
}

// NewClientCredentials creates the issuer.
func NewClientCredentials(options ClientCredentialsOptions) *ClientCredentials {
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.TimeSource == nil {
		options.TimeSource = time.Now
	}
	return &ClientCredentials{
		options: options,
		log:     newLogger(options.Logf, options.Debug),
	}
}

// RequestNewToken sends one client-credentials token request.
func (c *ClientCredentials) RequestNewToken(ctx context.Context) (token.Token, error) {
	c.log.infof("requesting new access token: %s", c.options.TokenURL)

	begin := time.Now()

	reqOptions := cc.RequestOptions{
		TokenURL:       c.options.TokenURL,
		ClientID:       c.options.ClientID,
		ClientSecret:   c.options.ClientSecret,
		Scope:          c.options.Scope,
		HTTPClient:     c.options.HTTPClient,
		IsStatusCodeOK: c.options.IsTokenStatusCodeOk,
	}

	resp, errSend := cc.SendRequest(ctx, reqOptions)
	if errSend != nil {
		return token.Token{}, fmt.Errorf("client credentials token request: %w", errSend)
	}

	c.log.debugf("token response: elapsed:%v expires_in:%v", time.Since(begin), resp.ExpiresIn)

	lifetime := seconds(resp.ExpiresIn)
	if lifetime <= 0 {
		lifetime = c.options.DefaultLifetime
	}

	t := token.New(resp.AccessToken, lifetime, c.options.TimeSource())
	if !t.IsSet() {
		c.log.infof("token server returned no usable token: expires_in=%v", resp.ExpiresIn)
	}

	return t, nil
}
