package provider

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker wraps a Provider with a circuit breaker so a dying gateway
// sheds load fast instead of burning the whole claim batch on timeouts.
type Breaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

func WithBreaker(name string, inner Provider) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     1 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= 3
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Send(ctx context.Context, to, body string) (string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Send(ctx, to, body)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}
