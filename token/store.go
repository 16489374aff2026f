package token

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultGracePeriod is subtracted from token deadline to force early refresh,
// so a token never expires while a request is in flight.
const DefaultGracePeriod = 60 * time.Second

// RefreshFunc retrieves a new token from the issuer.
type RefreshFunc func(ctx context.Context) (Token, error)

// StoreOptions define store options.
type StoreOptions struct {
	// 0 defaults to DefaultGracePeriod. Set to -1 to no grace period.
	GracePeriod time.Duration

	// Time source used to check token expiration.
	// If unspecified, defaults to time.Now().
	TimeSource func() time.Time
}

// Store holds the current token.
//
// Reads are lock-free while the token is valid.
// Mutations go through a semaphore of capacity 1, so at most one
// refresh is in flight at any instant.
type Store struct {
	current    atomic.Pointer[Token]
	sem        chan struct{}
	grace      time.Duration
	timeSource func() time.Time
}

// NewStore creates an empty store.
func NewStore(options StoreOptions) *Store {
	switch {
	case options.GracePeriod == 0:
		options.GracePeriod = DefaultGracePeriod
	case options.GracePeriod < 0:
		options.GracePeriod = 0
	}
	if options.TimeSource == nil {
		options.TimeSource = time.Now
	}
	s := &Store{
		sem:        make(chan struct{}, 1),
		grace:      options.GracePeriod,
		timeSource: options.TimeSource,
	}
	s.current.Store(&Token{})
	return s
}

// Get returns the cached token, valid or not.
func (s *Store) Get() Token {
	return *s.current.Load()
}

func (s *Store) valid() (Token, bool) {
	t := s.Get()
	return t, t.IsValid(s.timeSource(), s.grace)
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.sem
}

// GetOrRefresh returns a valid token value, calling refresh if the cached
// token is missing or inside the grace window.
//
// Concurrent callers that find the token invalid queue on the semaphore;
// the first one refreshes and the others observe its result.
// A refresh error leaves the cached token untouched.
// A sentinel result is stored and reported as ErrNoToken.
func (s *Store) GetOrRefresh(ctx context.Context, refresh RefreshFunc) (string, error) {
	if t, ok := s.valid(); ok {
		return t.Value, nil
	}

	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()

	// another caller may have refreshed while we waited
	if t, ok := s.valid(); ok {
		return t.Value, nil
	}

	return s.update(ctx, refresh)
}

// Refresh unconditionally fetches a new token and replaces the cached one,
// ignoring the validity of the current token. It shares the semaphore with
// GetOrRefresh, so it never overlaps another refresh.
// A refresh error leaves the cached token untouched.
// A sentinel result is stored and reported as ErrNoToken.
func (s *Store) Refresh(ctx context.Context, refresh RefreshFunc) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()

	return s.update(ctx, refresh)
}

// update calls refresh and stores its result. Caller holds the semaphore.
func (s *Store) update(ctx context.Context, refresh RefreshFunc) (string, error) {
	t, err := refresh(ctx)
	if err != nil {
		return "", err
	}

	if !t.IsSet() {
		s.current.Store(&Token{})
		return "", ErrNoToken
	}

	s.current.Store(&t)

	return t.Value, nil
}

// ForceUpdate unconditionally replaces the cached token.
// A non-usable token is stored as the sentinel.
func (s *Store) ForceUpdate(ctx context.Context, t Token) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if !t.IsSet() {
		t = Token{}
	}
	s.current.Store(&t)

	return nil
}

// Expire resets the store to the sentinel state.
func (s *Store) Expire(ctx context.Context) error {
	return s.ForceUpdate(ctx, Token{})
}
