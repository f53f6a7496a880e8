package notifier

import (
	"context"
	"github.com/google/uuid"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.New(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

type delivery struct {
	target       string
	notification Notification
}

type recordingSink struct {
	mu         sync.Mutex
	deliveries []delivery
	errs       map[string]error
}

func (s *recordingSink) Deliver(_ context.Context, target string, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[target]; ok {
		return err
	}
	s.deliveries = append(s.deliveries, delivery{target: target, notification: n})
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

func (s *recordingSink) all() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery(nil), s.deliveries...)
}

// slowSink takes delay per delivery and never returns for stalled targets until
// the context is done.
type slowSink struct {
	recordingSink
	delay   time.Duration
	stalled map[string]bool
}

func (s *slowSink) Deliver(ctx context.Context, target string, n Notification) error {
	wait := s.delay
	if s.stalled[target] {
		wait = time.Hour
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return s.recordingSink.Deliver(ctx, target, n)
}

// scriptedAdapter answers FetchOnlineSet from a script, one entry per call. The
// last entry repeats.
type scriptedAdapter struct {
	mu      sync.Mutex
	name    string
	script  []fetchResult
	calls   int
	tracked [][]streams.Tracked
}

type fetchResult struct {
	online streams.OnlineSet
	err    error
	panic  bool
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) ValidateUsername(raw string) (string, error) {
	return streams.ValidateUsername(raw)
}

func (a *scriptedAdapter) ResolveStreamer(context.Context, string) (streams.Channel, error) {
	return streams.Channel{}, streams.ErrStreamerNotFound
}

func (a *scriptedAdapter) FetchOnlineSet(_ context.Context, tracked []streams.Tracked) (streams.OnlineSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracked = append(a.tracked, tracked)
	i := a.calls
	a.calls++
	if i >= len(a.script) {
		i = len(a.script) - 1
	}
	r := a.script[i]
	if r.panic {
		panic("provider exploded")
	}
	return r.online, r.err
}

func (a *scriptedAdapter) StreamURL(t streams.Tracked) string {
	return "https://example.test/" + t.Username
}

func (a *scriptedAdapter) IconURL() string { return "https://example.test/icon.png" }

func (a *scriptedAdapter) fetches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// flakyStore fails SetOnlineStatus for selected streamers.
type flakyStore struct {
	*db.DB
	failFor map[uuid.UUID]bool
}

func (s *flakyStore) SetOnlineStatus(ctx context.Context, id uuid.UUID, online bool) error {
	if s.failFor[id] {
		return context.DeadlineExceeded
	}
	return s.DB.SetOnlineStatus(ctx, id, online)
}
