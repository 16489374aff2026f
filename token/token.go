// Package token implements Token and the process-wide token Store.
package token

import (
	"errors"
	"time"
)

// Token holds a bearer token and its absolute expiration time.
//
// The zero Token is the sentinel "unset" state: no usable token.
// Issuers return it when the server did not hand out a usable token,
// and the Store keeps it so that the next read retries the refresh.
type Token struct {
	Value    string    `json:"value"`
	Deadline time.Time `json:"deadline"`
}

// ErrNoToken is returned when the issuer produced no usable token.
var ErrNoToken = errors.New("no usable token obtained from issuer")

// New builds a token from a relative lifetime.
// Empty value or non-positive lifetime yields the sentinel Token{}.
func New(value string, expiresIn time.Duration, now time.Time) Token {
	if value == "" || expiresIn <= 0 {
		return Token{}
	}
	return Token{
		Value:    value,
		Deadline: now.UTC().Add(expiresIn),
	}
}

// IsSet reports whether the token is something other than the sentinel.
func (t Token) IsSet() bool {
	return t.Value != "" && !t.Deadline.IsZero()
}

// IsValid checks whether token is usable at now, keeping grace before the deadline.
// A token is usable only while now < Deadline - grace.
func (t Token) IsValid(now time.Time, grace time.Duration) bool {
	if !t.IsSet() {
		return false
	}
	return now.Before(t.Deadline.Add(-grace))
}
