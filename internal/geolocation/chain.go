package geolocation

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each resolver in order and returns the first successful lookup.
type Chain []Resolver

func (c Chain) Locate(ctx context.Context, ip string) (Info, error) {
	if len(c) == 0 {
		return Info{}, ErrNoResolver
	}
	errs := make([]error, 0, len(c))
	for i, r := range c {
		info, err := r.Locate(ctx, ip)
		if err == nil {
			return info, nil
		}
		errs = append(errs, fmt.Errorf("resolver %d: %w", i, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Info{}, errors.Join(errs...)
}
