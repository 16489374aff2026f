package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/udhos/tokenproxy/token"
)

// UsersPath is appended to the auth base URL.
const UsersPath = "Users/authenticate"

// UsersOptions define options for the username/password issuer.
type UsersOptions struct {
	// BaseURL is the auth server base address. UsersPath is appended to it.
	BaseURL  string
	Username string
	Password string

	// HTTPClient is the HTTP client to use to make requests.
	// If nil, http.DefaultClient is used.
	HTTPClient HTTPDoer

	// Time source used to compute absolute expiry.
	// If unspecified, defaults to time.Now().
	TimeSource func() time.Time

	// Logging function, if undefined defaults to log.Printf
	Logf func(format string, v ...any)

	// Enable debug logging.
	Debug bool
}

// Users requests tokens with a JSON username/password exchange.
type Users struct {
	options UsersOptions
	url     string
	log     logger
}

type usersRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type usersResponse struct {
	Token     *string `json:"Token"`
	ExpiresIn *int    `json:"ExpiresIn"`
	Message   *string `json:"message"`
	ResCode   *int    `json:"resCode"`
}

// NewUsers creates the issuer.
func NewUsers(options UsersOptions) *Users {
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.TimeSource == nil {
		options.TimeSource = time.Now
	}
	return &Users{
		options: options,
		url:     strings.TrimSuffix(options.BaseURL, "/") + "/" + UsersPath,
		log:     newLogger(options.Logf, options.Debug),
	}
}

// RequestNewToken performs one POST to the authenticate endpoint.
func (u *Users) RequestNewToken(ctx context.Context) (token.Token, error) {
	u.log.infof("requesting new access token: %s", u.url)

	buf, errJSON := json.Marshal(usersRequest{
		Username: u.options.Username,
		Password: u.options.Password,
	})
	if errJSON != nil {
		return token.Token{}, fmt.Errorf("token request encode: %w", errJSON)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(buf))
	if errReq != nil {
		return token.Token{}, fmt.Errorf("token request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	begin := time.Now()

	resp, errDo := u.options.HTTPClient.Do(req)
	if errDo != nil {
		return token.Token{}, fmt.Errorf("token request send: %w", errDo)
	}
	defer resp.Body.Close()

	body, errBody := io.ReadAll(resp.Body)
	if errBody != nil {
		return token.Token{}, fmt.Errorf("token response body: %w", errBody)
	}

	u.log.debugf("token response: elapsed:%v status:%d body:%s",
		time.Since(begin), resp.StatusCode, body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return token.Token{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result usersResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return token.Token{}, fmt.Errorf("token response decode: %w", err)
	}

	var value string
	if result.Token != nil && strings.TrimSpace(*result.Token) != "" {
		value = *result.Token
	}
	var expiresIn int
	if result.ExpiresIn != nil {
		expiresIn = *result.ExpiresIn
	}

	t := token.New(value, seconds(expiresIn), u.options.TimeSource())
	if !t.IsSet() {
		u.log.infof("token server returned no usable token: expires_in=%d", expiresIn)
	}

	return t, nil
}
