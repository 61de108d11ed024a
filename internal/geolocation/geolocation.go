// Package geolocation resolves a network address to an approximate location.
package geolocation

import (
	"context"
	"errors"
	"time"

	"github.com/rudderlabs/visitor-log/internal/model"
)

var (
	ErrInvalidDatabase = errors.New("invalid database file")
	ErrInvalidIP       = errors.New("ip for lookup cannot be empty or invalid")
	ErrNoResolver      = errors.New("no geolocation resolver configured")
)

// Info is what a lookup returns. Any field may be empty.
type Info struct {
	IP      string
	City    string
	Country string
}

// Resolver locates an ip address. An empty ip asks the resolver for the
// location of the address the request originates from, when it supports it.
type Resolver interface {
	Locate(ctx context.Context, ip string) (Info, error)
}

// ResolveEntry returns the visit entry for ip stamped with now. When the lookup
// fails the all-sentinel entry is returned together with the lookup error, so
// that callers can log it and carry on.
func ResolveEntry(ctx context.Context, resolver Resolver, ip string, now time.Time) (model.Entry, error) {
	info, err := resolver.Locate(ctx, ip)
	if err != nil {
		return model.Fallback(now), err
	}
	return model.NewEntry(info.IP, info.City, info.Country, now), nil
}
