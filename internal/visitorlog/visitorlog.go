// Package visitorlog records one entry per page load and renders the deduplicated
// list of recent visits.
package visitorlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/visitor-log/internal/geolocation"
	"github.com/rudderlabs/visitor-log/internal/model"
)

type entryStore interface {
	Append(ctx context.Context, entry model.Entry) ([]byte, error)
	List(ctx context.Context) ([]model.Entry, error)
}

// Display receives the rendered visitor list, one string per entry.
type Display interface {
	SetEntries(entries []string)
}

type Service struct {
	resolver geolocation.Resolver
	store    entryStore

	log   logger.Logger
	stats stats.Stats
	now   func() time.Time

	window   time.Duration
	location *time.Location
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, resolver geolocation.Resolver, store entryStore) (*Service, error) {
	location, err := time.LoadLocation(conf.GetStringVar("Local", "Visitors.timezone"))
	if err != nil {
		return nil, fmt.Errorf("loading visitors timezone: %w", err)
	}
	return &Service{
		resolver: resolver,
		store:    store,
		log:      log.Child("visitorlog"),
		stats:    statsFactory,
		now:      time.Now,
		window:   conf.GetDurationVar(6, time.Hour, "Visitors.dedupWindow"),
		location: location,
	}, nil
}

// LogVisit resolves the visitor at ip and appends the resulting entry to the
// store. Neither a failed lookup nor a failed append is returned: the first
// degrades to the sentinel entry, the second is only logged.
func (s *Service) LogVisit(ctx context.Context, ip string) model.Entry {
	entry, err := geolocation.ResolveEntry(ctx, s.resolver, ip, s.now())
	result := "success"
	if err != nil {
		result = "fallback"
		s.log.Warnn("Error fetching visitor information", obskit.Error(err))
	}
	s.stats.NewTaggedStat("visitor_log_geolocation_lookups", stats.CountType, stats.Tags{"result": result}).Increment()

	resp, err := s.store.Append(ctx, entry)
	if err != nil {
		s.log.Errorn("Error logging visitor entry", obskit.Error(err))
		return entry
	}
	s.log.Infon("Visitor entry logged", logger.NewStringField("response", string(resp)))
	return entry
}

// Entries returns the deduplicated entries of the store, newest first.
func (s *Service) Entries(ctx context.Context) ([]model.Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return Dedup(entries, s.window), nil
}

// Location is where timestamps are rendered.
func (s *Service) Location() *time.Location {
	return s.location
}

// Refresh reads every entry from the store, deduplicates and renders them into
// display. When the store cannot be read the placeholder is rendered instead.
func (s *Service) Refresh(ctx context.Context, display Display) string {
	defer s.stats.NewStat("visitor_log_refresh_duration", stats.TimerType).RecordDuration()()

	kept, err := s.Entries(ctx)
	if ctx.Err() != nil {
		return ""
	}
	if err != nil {
		s.log.Errorn("Error fetching entries", obskit.Error(err))
		rendered := Placeholder()
		display.SetEntries([]string{rendered})
		return rendered
	}
	s.stats.NewStat("visitor_log_rendered_entries", stats.GaugeType).Gauge(len(kept))

	rendered := RenderEntries(kept, s.location)
	display.SetEntries(rendered)
	return strings.Join(rendered, Separator)
}
