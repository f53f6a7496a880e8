package bot

import (
	"context"
	"github.com/ivandardi/StreamNotificationBot/notifier"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
	"testing"
)

type sent struct {
	to   string
	what interface{}
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sent{to: to.Recipient(), what: what})
	return &tele.Message{}, nil
}

func TestSink_Deliver(t *testing.T) {
	sender := &fakeSender{}
	n := notifier.Notification{Username: "foo", Service: "picarto", StreamURL: "https://picarto.tv/foo"}

	require.NoError(t, NewSink(sender, 0).Deliver(context.Background(), "telegram:-100", n))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "-100", sender.sent[0].to)
	assert.Equal(t, "foo is now live on picarto!\nhttps://picarto.tv/foo", sender.sent[0].what)
}

func TestSink_BadTarget(t *testing.T) {
	sink := NewSink(&fakeSender{}, 0)
	for _, target := range []string{"telegram:abc", "https://example.test", "telegram"} {
		err := sink.Deliver(context.Background(), target, notifier.Notification{})
		assert.True(t, errors.Is(err, notifier.ErrInvalidTarget), "%v: %v", target, err)
	}
}

func TestSink_ErrorMapping(t *testing.T) {
	tests := []struct {
		err     error
		invalid bool
	}{
		{err: tele.ErrBlockedByUser, invalid: true},
		{err: tele.ErrKickedFromGroup, invalid: true},
		{err: tele.ErrChatNotFound, invalid: true},
		{err: errors.New("telegram: retry after 5"), invalid: false},
	}
	for _, tt := range tests {
		err := NewSink(&fakeSender{err: tt.err}, 0).Deliver(context.Background(), "telegram:1", notifier.Notification{})
		require.Error(t, err)
		assert.Equal(t, tt.invalid, errors.Is(err, notifier.ErrInvalidTarget), "%v", tt.err)
	}
}

func TestSink_RespectsContext(t *testing.T) {
	sink := NewSink(&fakeSender{}, 0.001)
	ctx, cancel := context.WithCancel(context.Background())
	// the first message uses the burst
	require.NoError(t, sink.Deliver(ctx, "telegram:1", notifier.Notification{}))
	cancel()
	assert.Error(t, sink.Deliver(ctx, "telegram:1", notifier.Notification{}))
}
