package visitorlog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	"github.com/rudderlabs/rudder-go-kit/stats/memstats"

	"github.com/rudderlabs/visitor-log/internal/geolocation"
	"github.com/rudderlabs/visitor-log/internal/model"
)

type fakeResolver struct {
	info geolocation.Info
	err  error
}

func (f *fakeResolver) Locate(_ context.Context, ip string) (geolocation.Info, error) {
	if f.err != nil {
		return geolocation.Info{}, f.err
	}
	info := f.info
	if ip != "" {
		info.IP = ip
	}
	return info, nil
}

type fakeStore struct {
	mu        sync.Mutex
	entries   []model.Entry
	appendErr error
	listErr   error
}

func (f *fakeStore) Append(_ context.Context, entry model.Entry) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.entries = append(f.entries, entry)
	return []byte(`{"created":1}`), nil
}

func (f *fakeStore) List(context.Context) ([]model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Entry(nil), f.entries...), nil
}

func (f *fakeStore) Entries() []model.Entry {
	entries, _ := f.List(context.Background())
	return entries
}

type fakeDisplay struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeDisplay) SetEntries(entries []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

func (f *fakeDisplay) Entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries
}

func (f *fakeDisplay) Text() string {
	return strings.Join(f.Entries(), Separator)
}

var now = time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)

func newService(t *testing.T, conf *config.Config, statsFactory stats.Stats, resolver geolocation.Resolver, store entryStore) *Service {
	t.Helper()
	conf.Set("Visitors.timezone", "UTC")
	s, err := New(conf, logger.NOP, statsFactory, resolver, store)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestNew(t *testing.T) {
	conf := config.New()
	conf.Set("Visitors.timezone", "Nowhere/Atlantis")
	_, err := New(conf, logger.NOP, stats.NOP, &fakeResolver{}, &fakeStore{})
	require.Error(t, err)
}

func TestLogVisit(t *testing.T) {
	t.Run("located visitor", func(t *testing.T) {
		statsStore, err := memstats.New()
		require.NoError(t, err)
		store := &fakeStore{}
		s := newService(t, config.New(), statsStore, &fakeResolver{info: geolocation.Info{City: "Sydney", Country: "AU"}}, store)

		entry := s.LogVisit(context.Background(), "1.1.1.1")

		expected := model.Entry{IP: "1.1.1.1", City: "sydney", Country: "au", Timestamp: now}
		require.Equal(t, expected, entry)
		require.Equal(t, []model.Entry{expected}, store.Entries())
		require.EqualValues(t, 1, statsStore.Get("visitor_log_geolocation_lookups", stats.Tags{"result": "success"}).LastValue())
	})

	t.Run("lookup failure records the fallback entry", func(t *testing.T) {
		statsStore, err := memstats.New()
		require.NoError(t, err)
		store := &fakeStore{}
		s := newService(t, config.New(), statsStore, &fakeResolver{err: errors.New("lookup failed")}, store)

		entry := s.LogVisit(context.Background(), "1.1.1.1")

		require.Equal(t, model.Fallback(now), entry)
		require.Equal(t, []model.Entry{model.Fallback(now)}, store.Entries())
		require.EqualValues(t, 1, statsStore.Get("visitor_log_geolocation_lookups", stats.Tags{"result": "fallback"}).LastValue())
	})

	t.Run("append failure is not fatal", func(t *testing.T) {
		store := &fakeStore{appendErr: errors.New("store down")}
		s := newService(t, config.New(), stats.NOP, &fakeResolver{info: geolocation.Info{City: "sydney", Country: "au"}}, store)

		entry := s.LogVisit(context.Background(), "1.1.1.1")

		require.Equal(t, "sydney", entry.City)
		require.Empty(t, store.Entries())
	})
}

func TestRefresh(t *testing.T) {
	t.Run("deduplicated entries are rendered", func(t *testing.T) {
		statsStore, err := memstats.New()
		require.NoError(t, err)
		store := &fakeStore{entries: []model.Entry{
			{IP: "1.1.1.1", City: "sydney", Country: "au", Timestamp: now.Add(-time.Hour)},
			{IP: "2.2.2.2", City: "paris", Country: "fr", Timestamp: now.Add(-2 * time.Hour)},
			{IP: "1.1.1.1", City: "sydney", Country: "au", Timestamp: now},
		}}
		s := newService(t, config.New(), statsStore, &fakeResolver{}, store)
		display := &fakeDisplay{}

		rendered := s.Refresh(context.Background(), display)

		require.Equal(t, "5.1.24 12:30:05 sydney, au ➛ 5.1.24 10:30:05 paris, fr", rendered)
		require.Equal(t, rendered, display.Text())
		require.EqualValues(t, 2, statsStore.Get("visitor_log_rendered_entries", stats.Tags{}).LastValue())
	})

	t.Run("dedup window is configurable", func(t *testing.T) {
		conf := config.New()
		conf.Set("Visitors.dedupWindow", "30m")
		store := &fakeStore{entries: []model.Entry{
			{IP: "1.1.1.1", City: "sydney", Country: "au", Timestamp: now},
			{IP: "1.1.1.1", City: "sydney", Country: "au", Timestamp: now.Add(-time.Hour)},
		}}
		s := newService(t, conf, stats.NOP, &fakeResolver{}, store)

		display := &fakeDisplay{}
		s.Refresh(context.Background(), display)
		require.Len(t, display.Entries(), 2)
	})

	t.Run("empty store", func(t *testing.T) {
		s := newService(t, config.New(), stats.NOP, &fakeResolver{}, &fakeStore{})
		display := &fakeDisplay{}
		s.Refresh(context.Background(), display)
		require.Equal(t, "present time : present place nowhere, zz", display.Text())
	})

	t.Run("store failure renders the placeholder", func(t *testing.T) {
		s := newService(t, config.New(), stats.NOP, &fakeResolver{}, &fakeStore{listErr: errors.New("store down")})
		display := &fakeDisplay{entries: []string{"previous"}}
		s.Refresh(context.Background(), display)
		require.Equal(t, Placeholder(), display.Text())
	})

	t.Run("cancelled refresh leaves the display alone", func(t *testing.T) {
		s := newService(t, config.New(), stats.NOP, &fakeResolver{}, &fakeStore{listErr: context.Canceled})
		display := &fakeDisplay{entries: []string{"previous"}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.Refresh(ctx, display)
		require.Equal(t, "previous", display.Text())
	})
}

func TestRefresher(t *testing.T) {
	conf := config.New()
	conf.Set("Visitors.refreshInterval", "10ms")
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu    sync.Mutex
		calls int
	)
	r := NewRefresher(context.Background(), conf, logger.NOP, func(context.Context) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run()
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, time.Millisecond)
	require.True(t, r.Running())

	r.Stop()
	<-done
	require.False(t, r.Running())
}

func TestSession(t *testing.T) {
	conf := config.New()
	conf.Set("Visitors.refreshInterval", "10ms")
	store := &fakeStore{}
	s := newService(t, conf, stats.NOP, &fakeResolver{info: geolocation.Info{City: "sydney", Country: "au"}}, store)
	display := &fakeDisplay{}
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	session := s.NewSession(context.Background(), conf, display)
	require.NotEmpty(t, session.ID)
	session.Start()
	session.Visit("1.1.1.1")

	require.Eventually(t, func() bool {
		return display.Text() == "5.1.24 12:30:05 sydney, au"
	}, time.Second, time.Millisecond)

	session.Stop()
	session.Visit("2.2.2.2")
	require.Len(t, store.Entries(), 1)
}

func TestSessionVisitDuringStop(t *testing.T) {
	conf := config.New()
	conf.Set("Visitors.refreshInterval", "10ms")
	store := &fakeStore{}
	s := newService(t, conf, stats.NOP, &fakeResolver{info: geolocation.Info{City: "sydney", Country: "au"}}, store)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	session := s.NewSession(context.Background(), conf, &fakeDisplay{})
	session.Start()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Visit("1.1.1.1")
		}()
	}
	session.Stop()
	wg.Wait()

	visits := len(store.Entries())
	session.Visit("2.2.2.2")
	require.Len(t, store.Entries(), visits)
	require.LessOrEqual(t, visits, 50)
}
