package geolocation

import (
	"context"
	"time"

	"github.com/rudderlabs/rudder-go-kit/cachettl"
)

// Cached remembers successful lookups per ip for ttl. Lookups of the empty ip
// are never cached since their answer depends on who is asking.
type Cached struct {
	resolver Resolver
	cache    *cachettl.Cache[string, *Info]
	ttl      time.Duration
}

func NewCached(resolver Resolver, ttl time.Duration) *Cached {
	return &Cached{
		resolver: resolver,
		cache:    cachettl.New[string, *Info](),
		ttl:      ttl,
	}
}

func (c *Cached) Locate(ctx context.Context, ip string) (Info, error) {
	if ip == "" || c.ttl <= 0 {
		return c.resolver.Locate(ctx, ip)
	}
	if info := c.cache.Get(ip); info != nil {
		return *info, nil
	}
	info, err := c.resolver.Locate(ctx, ip)
	if err != nil {
		return Info{}, err
	}
	c.cache.Put(ip, &info, c.ttl)
	return info, nil
}
