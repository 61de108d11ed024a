package geolocation

import (
	"fmt"
	"time"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

// New builds the resolver described by configuration: the HTTP API behind a
// circuit breaker, followed by the offline database when Geolocation.db.path is
// set, all behind a ttl cache. The returned function releases the offline database.
func New(conf *config.Config, log logger.Logger) (Resolver, func() error, error) {
	log = log.Child("geolocation")
	chain := Chain{NewBreaker(
		"ipinfo",
		NewIPInfoClient(conf),
		conf.GetIntVar(3, 1, "Geolocation.breaker.consecutiveFailures"),
		conf.GetDurationVar(30, time.Second, "Geolocation.breaker.timeout"),
		log,
	)}
	closeFn := func() error { return nil }

	if dbPath := conf.GetStringVar("", "Geolocation.db.path"); dbPath != "" {
		reader, err := NewMaxmindReader(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("creating maxmind reader: %w", err)
		}
		log.Infon("Offline geolocation database enabled", logger.NewStringField("path", dbPath))
		chain = append(chain, reader)
		closeFn = reader.Close
	}

	ttl := conf.GetDurationVar(1, time.Hour, "Geolocation.cacheTTL")
	return NewCached(chain, ttl), closeFn, nil
}
