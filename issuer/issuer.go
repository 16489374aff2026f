// Package issuer obtains bearer tokens from the upstream token-issuing endpoint.
package issuer

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/udhos/tokenproxy/token"
)

// Issuer requests new tokens.
//
// A server response without a usable token or lifetime is reported as the
// sentinel token.Token{} with nil error, so the token store can apply its
// sentinel rule. Transport failures and non-2xx statuses are errors.
type Issuer interface {
	RequestNewToken(ctx context.Context) (token.Token, error)
}

// HTTPDoer is interface for http client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-2xx response from the token server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("token server bad status:%d body:%s", e.StatusCode, e.Body)
}

// maxSeconds is the largest lifetime in seconds a time.Duration can hold.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// seconds converts a server-reported lifetime, clamping values that would
// overflow time.Duration.
func seconds(s int) time.Duration {
	if int64(s) > maxSeconds {
		return time.Duration(maxSeconds) * time.Second
	}
	return time.Duration(s) * time.Second
}

// logger holds the logging hooks shared by issuers.
type logger struct {
	logf  func(format string, v ...any)
	debug bool
}

func newLogger(logf func(format string, v ...any), debug bool) logger {
	if logf == nil {
		logf = log.Printf
	}
	return logger{logf: logf, debug: debug}
}

func (l logger) infof(format string, v ...any) {
	l.logf("INFO: "+format, v...)
}

func (l logger) debugf(format string, v ...any) {
	if l.debug {
		l.logf("DEBUG: "+format, v...)
	}
}
