package visitorlog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

// Session is the lifetime of a page: it owns the periodic refresh of display
// and the visit flows started for it. Visit flows and the refresh share nothing
// but the store.
type Session struct {
	ID string

	service   *Service
	refresher *Refresher
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	mu      sync.Mutex
	stopped bool
}

func (s *Service) NewSession(ctx context.Context, conf *config.Config, display Display) *Session {
	id := uuid.NewString()
	log := s.log.Withn(logger.NewStringField("sessionId", id))

	ctx, cancel := context.WithCancel(ctx)
	g := &errgroup.Group{}

	return &Session{
		ID:      id,
		service: s,
		refresher: NewRefresher(ctx, conf, log, func(ctx context.Context) {
			s.Refresh(ctx, display)
		}),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		g:      g,
	}
}

// Start begins the periodic refresh.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.log.Infon("Starting visitor log session")
	s.g.Go(func() error {
		s.refresher.Run()
		return nil
	})
}

// Visit logs one page load by ip without waiting for it to complete. Visits
// after Stop are ignored.
func (s *Session) Visit(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.g.Go(func() error {
		s.service.LogVisit(s.ctx, ip)
		return nil
	})
}

// Stop cancels the refresh and every visit in flight, and waits for them.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.refresher.Stop()
	_ = s.g.Wait()
	s.log.Infon("Stopped visitor log session")
}
