package notifier

import (
	"github.com/google/uuid"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"testing"
)

func streamer(username string, online bool) db.Streamer {
	return db.Streamer{Id: uuid.New(), Service: "picarto", Username: username, IsOnline: online}
}

func TestDiff_NewlyOnlineOnly(t *testing.T) {
	a := streamer("a", true)
	b := streamer("b", false)

	transitions := Diff([]db.Streamer{a, b}, streams.NewOnlineSet("a", "b"), nil)

	assert.Equal(t, []Transition{{Streamer: b, Online: true}}, transitions)
}

func TestDiff_WentOffline(t *testing.T) {
	a := streamer("a", true)
	b := streamer("b", false)

	transitions := Diff([]db.Streamer{a, b}, streams.NewOnlineSet(), nil)

	assert.Equal(t, []Transition{{Streamer: a, Online: false}}, transitions)
}

func TestDiff_FetchFailedMeansNoChange(t *testing.T) {
	a := streamer("a", true)
	b := streamer("b", true)

	transitions := Diff([]db.Streamer{a, b}, nil, errors.Wrap(streams.ErrFetchFailed, "timeout"))

	assert.Empty(t, transitions)
}

func TestDiff_Stable(t *testing.T) {
	a := streamer("a", true)
	b := streamer("b", false)

	assert.Empty(t, Diff([]db.Streamer{a, b}, streams.NewOnlineSet("a"), nil))
	assert.Empty(t, Diff(nil, streams.NewOnlineSet("a"), nil))
}

func TestDiff_IgnoresUntrackedOnline(t *testing.T) {
	a := streamer("a", false)

	transitions := Diff([]db.Streamer{a}, streams.NewOnlineSet("a", "stranger"), nil)

	assert.Equal(t, []Transition{{Streamer: a, Online: true}}, transitions)
}
