package artifact

import (
	"context"
	"errors"

	"github.com/ryanbastic/go-scorecard/internal/circuitbreaker"
)

// BreakerStore guards a Store with a circuit breaker. A missing object is a
// healthy answer and does not count as a failure.
type BreakerStore struct {
	inner   Store
	breaker *circuitbreaker.Breaker
}

// NewBreakerStore wraps inner with b.
func NewBreakerStore(inner Store, b *circuitbreaker.Breaker) *BreakerStore {
	return &BreakerStore{inner: inner, breaker: b}
}

func (s *BreakerStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	var url string
	err := s.breaker.Execute(func() error {
		var err error
		url, err = s.inner.Put(ctx, key, data, contentType)
		return err
	})
	return url, err
}

func (s *BreakerStore) Get(ctx context.Context, url string) ([]byte, error) {
	var (
		data     []byte
		notFound bool
	)
	err := s.breaker.Execute(func() error {
		var err error
		data, err = s.inner.Get(ctx, url)
		if errors.Is(err, ErrNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if notFound {
		return nil, ErrNotFound
	}
	return data, err
}

// Ping forwards to the wrapped store when it supports pinging.
func (s *BreakerStore) Ping(ctx context.Context) error {
	if p, ok := s.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
