package visitorlog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"
)

const defaultRefreshInterval = time.Minute

// Refresher calls refresh right away and then once per interval, until it is
// stopped or its parent context is done.
type Refresher struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	log      logger.Logger
	interval config.ValueLoader[time.Duration]
	refresh  func(ctx context.Context)

	running atomic.Bool
}

func NewRefresher(ctx context.Context, conf *config.Config, log logger.Logger, refresh func(ctx context.Context)) *Refresher {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	return &Refresher{
		ctx:      ctx,
		cancel:   cancel,
		g:        g,
		log:      log,
		interval: conf.GetReloadableDurationVar(60, time.Second, "Visitors.refreshInterval"),
		refresh:  refresh,
	}
}

// Run blocks until the refresh loop exits.
func (r *Refresher) Run() {
	r.g.Go(func() error {
		return r.loop(r.ctx)
	})

	r.running.Store(true)
	defer r.running.Store(false)

	if err := r.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Errorn("error in refresher", obskit.Error(err))
	}
}

func (r *Refresher) loop(ctx context.Context) error {
	interval := r.loadInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.refresh(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		// the interval is hot reloadable
		if next := r.loadInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (r *Refresher) loadInterval() time.Duration {
	if interval := r.interval.Load(); interval > 0 {
		return interval
	}
	return defaultRefreshInterval
}

func (r *Refresher) Running() bool {
	return r.running.Load()
}

// Stop cancels the loop and waits for it to exit.
func (r *Refresher) Stop() {
	r.cancel()
	if err := r.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Errorn("error in stopping refresher", obskit.Error(err))
	}
}
