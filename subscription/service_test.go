package subscription

import (
	"context"
	"github.com/ivandardi/StreamNotificationBot/cache"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

type fakeAdapter struct {
	name     string
	channels map[string]streams.Channel
	err      error
	resolves int
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) ValidateUsername(raw string) (string, error) {
	return streams.ValidateUsername(raw)
}

func (a *fakeAdapter) ResolveStreamer(_ context.Context, username string) (streams.Channel, error) {
	a.resolves++
	if a.err != nil {
		return streams.Channel{}, a.err
	}
	channel, ok := a.channels[username]
	if !ok {
		return streams.Channel{}, errors.Wrap(streams.ErrStreamerNotFound, username)
	}
	return channel, nil
}

func (a *fakeAdapter) FetchOnlineSet(context.Context, []streams.Tracked) (streams.OnlineSet, error) {
	return streams.NewOnlineSet(), nil
}

func (a *fakeAdapter) StreamURL(t streams.Tracked) string {
	return "https://example.test/" + t.Username
}
func (a *fakeAdapter) IconURL() string { return "" }

type recordingLookup struct {
	cache.Nop
	invalidated []string
}

func (l *recordingLookup) Invalidate(_ context.Context, service, username string) error {
	l.invalidated = append(l.invalidated, service+":"+username)
	return nil
}

type failingStore struct {
	*db.DB
}

func (failingStore) AddSubscription(context.Context, string, string, string, string, string) (db.Streamer, error) {
	return db.Streamer{}, errors.New("disk full")
}

func newService(t *testing.T) (*Service, *fakeAdapter, *db.DB) {
	t.Helper()
	store, err := db.New(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	adapter := &fakeAdapter{name: "picarto", channels: map[string]streams.Channel{
		"mykegreywolf": {ProviderID: "100", DisplayName: "MykeGreyWolf"},
		"foo":          {ProviderID: "1", DisplayName: "Foo"},
	}}
	return NewService(streams.NewRegistry(adapter), store, nil, zerolog.Nop()), adapter, store
}

func TestSubscribe_CanonicalisesUsername(t *testing.T) {
	s, _, _ := newService(t)

	streamer, err := s.Subscribe(context.Background(), "U", "test:U", "Picarto", "MykeGreyWolf")

	require.NoError(t, err)
	assert.Equal(t, "mykegreywolf", streamer.Username)
	assert.Equal(t, "picarto", streamer.Service)
	assert.Equal(t, "100", streamer.ProviderId)
}

func TestSubscribe_RejectsBadInput(t *testing.T) {
	s, adapter, _ := newService(t)
	ctx := context.Background()

	for _, username := range []string{"", "ab", strings.Repeat("a", 25), "bad name"} {
		_, err := s.Subscribe(ctx, "U", "test:U", "picarto", username)
		assert.True(t, errors.Is(err, streams.ErrInvalidUsername), "%q: %v", username, err)
	}
	_, err := s.Subscribe(ctx, "U", "test:U", "mixer", "foo")
	assert.True(t, errors.Is(err, streams.ErrUnknownService), "got %v", err)
	assert.Zero(t, adapter.resolves)
}

func TestSubscribe_UnknownStreamer(t *testing.T) {
	s, _, store := newService(t)
	ctx := context.Background()

	_, err := s.Subscribe(ctx, "U", "test:U", "picarto", "nobody")

	assert.True(t, errors.Is(err, streams.ErrStreamerNotFound), "got %v", err)
	_, err = store.GetStreamer(ctx, "picarto", "nobody")
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestSubscribe_Duplicate(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	_, err := s.Subscribe(ctx, "U", "test:U", "picarto", "foo")
	require.NoError(t, err)

	_, err = s.Subscribe(ctx, "U", "test:U", "picarto", "FOO")

	assert.True(t, errors.Is(err, db.ErrAlreadySubscribed), "got %v", err)
	list, err := s.List(ctx, "U", "picarto")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubscribe_KnownStreamerSkipsProvider(t *testing.T) {
	s, adapter, _ := newService(t)
	ctx := context.Background()
	_, err := s.Subscribe(ctx, "U", "test:U", "picarto", "foo")
	require.NoError(t, err)
	require.Equal(t, 1, adapter.resolves)

	adapter.err = streams.ErrFetchFailed
	_, err = s.Subscribe(ctx, "V", "test:V", "picarto", "foo")

	require.NoError(t, err)
	assert.Equal(t, 1, adapter.resolves)
}

func TestSubscribe_ProviderDown(t *testing.T) {
	s, adapter, _ := newService(t)
	adapter.err = errors.Wrap(streams.ErrFetchFailed, "timeout")

	_, err := s.Subscribe(context.Background(), "U", "test:U", "picarto", "foo")

	assert.True(t, errors.Is(err, streams.ErrFetchFailed), "got %v", err)
}

func TestSubscribe_StoreFailureInvalidatesLookup(t *testing.T) {
	_, adapter, store := newService(t)
	lookup := &recordingLookup{}
	s := NewService(streams.NewRegistry(adapter), failingStore{store}, lookup, zerolog.Nop())

	_, err := s.Subscribe(context.Background(), "U", "test:U", "picarto", "foo")

	assert.Error(t, err)
	assert.Equal(t, []string{"picarto:foo"}, lookup.invalidated)
}

func TestUnsubscribe(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	_, err := s.Subscribe(ctx, "U", "test:U", "picarto", "foo")
	require.NoError(t, err)

	removed, err := s.Unsubscribe(ctx, "U", "picarto", "Foo")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Unsubscribe(ctx, "U", "picarto", "foo")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Unsubscribe(ctx, "U", "picarto", "x")
	assert.True(t, errors.Is(err, streams.ErrInvalidUsername))
}

func TestList(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	for _, name := range []string{"mykegreywolf", "foo"} {
		_, err := s.Subscribe(ctx, "U", "test:U", "picarto", name)
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "U", "picarto")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "foo", list[0].Username)
	assert.Equal(t, "mykegreywolf", list[1].Username)

	all, err := s.List(ctx, "U", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.List(ctx, "U", "mixer")
	assert.True(t, errors.Is(err, streams.ErrUnknownService))

	none, err := s.List(ctx, "V", "picarto")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestForget(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	_, err := s.Subscribe(ctx, "U", "test:U", "picarto", "foo")
	require.NoError(t, err)

	require.NoError(t, s.Forget(ctx, "U"))

	list, err := s.List(ctx, "U", "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []string{"picarto"}, s.Services())
}
