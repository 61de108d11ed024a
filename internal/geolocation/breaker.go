package geolocation

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

// ErrBreakerOpen is returned without calling the resolver while its circuit is open.
var ErrBreakerOpen = errors.New("geolocation circuit breaker is open")

// Breaker stops calling a resolver after consecutiveFailures failed lookups in a
// row and lets a single lookup through once timeout has passed. Invalid ips and
// cancelled lookups do not count as failures.
type Breaker struct {
	resolver Resolver
	cb       *gobreaker.CircuitBreaker
}

func NewBreaker(name string, resolver Resolver, consecutiveFailures int, timeout time.Duration, log logger.Logger) *Breaker {
	return &Breaker{
		resolver: resolver,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,       // Allow 1 request to pass through when in half-open state
			Interval:    0,       // Doesn't count failures when time between requests > interval
			Timeout:     timeout, // Time after which to transition from Open to Half-Open
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(consecutiveFailures)
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrInvalidIP) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Infon("circuit breaker state changed",
					logger.NewStringField("name", name),
					logger.NewStringField("from", from.String()),
					logger.NewStringField("to", to.String()),
				)
			},
		}),
	}
}

func (b *Breaker) Locate(ctx context.Context, ip string) (Info, error) {
	res, err := b.cb.Execute(func() (any, error) {
		info, err := b.resolver.Locate(ctx, ip)
		if err != nil {
			return nil, err
		}
		return info, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Info{}, ErrBreakerOpen
	}
	if err != nil {
		return Info{}, err
	}
	return res.(Info), nil
}

func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}
