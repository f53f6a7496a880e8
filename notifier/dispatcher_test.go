package notifier

import (
	"context"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestDispatcher_DeliversToEverySubscriber(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t)
	foo, err := store.AddSubscription(ctx, "u1", "test:1", "picarto", "foo", "1")
	require.NoError(t, err)
	_, err = store.AddSubscription(ctx, "u2", "test:2", "picarto", "foo", "1")
	require.NoError(t, err)
	sink := &recordingSink{}
	adapter := &scriptedAdapter{name: "picarto"}

	delivered := NewDispatcher(store, sink, zerolog.Nop()).Notify(ctx, adapter, foo)

	assert.Equal(t, 2, delivered)
	want := Notification{
		Username:  "foo",
		Service:   "picarto",
		StreamURL: "https://example.test/foo",
		IconURL:   "https://example.test/icon.png",
	}
	assert.Equal(t, []delivery{{"test:1", want}, {"test:2", want}}, sink.all())
}

func TestDispatcher_FailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t)
	foo, err := store.AddSubscription(ctx, "u1", "test:1", "picarto", "foo", "1")
	require.NoError(t, err)
	_, err = store.AddSubscription(ctx, "u2", "test:2", "picarto", "foo", "1")
	require.NoError(t, err)
	sink := &recordingSink{errs: map[string]error{"test:1": errors.New("network down")}}

	delivered := NewDispatcher(store, sink, zerolog.Nop()).Notify(ctx, &scriptedAdapter{name: "picarto"}, foo)

	assert.Equal(t, 1, delivered)
	require.Len(t, sink.all(), 1)
	assert.Equal(t, "test:2", sink.all()[0].target)
	// transient failures keep the subscriber
	subs, err := store.ListSubscriptions(ctx, "u1", "picarto")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestDispatcher_InvalidTargetRemovesSubscriber(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t)
	foo, err := store.AddSubscription(ctx, "u1", "test:1", "picarto", "foo", "1")
	require.NoError(t, err)
	_, err = store.AddSubscription(ctx, "u1", "test:1", "picarto", "bar", "2")
	require.NoError(t, err)
	sink := &recordingSink{errs: map[string]error{"test:1": errors.Wrap(ErrInvalidTarget, "bot was blocked")}}

	delivered := NewDispatcher(store, sink, zerolog.Nop()).Notify(ctx, &scriptedAdapter{name: "picarto"}, foo)

	assert.Zero(t, delivered)
	subs, err := store.ListSubscriptions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	sink := &recordingSink{}
	delivered := NewDispatcher(newTestDB(t), sink, zerolog.Nop()).
		Notify(context.Background(), &scriptedAdapter{name: "picarto"}, db.Streamer{Username: "ghost"})

	assert.Zero(t, delivered)
	assert.Zero(t, sink.count())
}

func TestRouter(t *testing.T) {
	telegram := &recordingSink{}
	web := &recordingSink{}
	router := NewRouter()
	router.Handle("telegram", telegram)
	router.Handle("https", web)
	n := Notification{Username: "foo"}
	ctx := context.Background()

	require.NoError(t, router.Deliver(ctx, "telegram:42", n))
	require.NoError(t, router.Deliver(ctx, "HTTPS://hooks.example.test/x", n))
	assert.Equal(t, []delivery{{"telegram:42", n}}, telegram.all())
	assert.Equal(t, 1, web.count())

	err := router.Deliver(ctx, "carrier-pigeon:home", n)
	assert.True(t, errors.Is(err, ErrInvalidTarget), "got %v", err)
	err = router.Deliver(ctx, "no-scheme", n)
	assert.True(t, errors.Is(err, ErrInvalidTarget), "got %v", err)

	assert.True(t, router.Supports("HTTPS"))
	assert.False(t, router.Supports("http"))
}

func TestDispatcher_StalledDeliveryTimesOutAlone(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t)
	foo, err := store.AddSubscription(ctx, "u1", "test:1", "picarto", "foo", "1")
	require.NoError(t, err)
	_, err = store.AddSubscription(ctx, "u2", "test:2", "picarto", "foo", "1")
	require.NoError(t, err)
	sink := &slowSink{stalled: map[string]bool{"test:1": true}}
	dispatcher := NewDispatcher(store, sink, zerolog.Nop())
	dispatcher.SetDeliveryTimeout(time.Millisecond * 50)

	delivered := dispatcher.Notify(ctx, &scriptedAdapter{name: "picarto"}, foo)

	assert.Equal(t, 1, delivered)
	require.Len(t, sink.all(), 1)
	assert.Equal(t, "test:2", sink.all()[0].target)
}
