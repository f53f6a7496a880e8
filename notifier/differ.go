package notifier

import (
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/streams"
)

// Transition is a presence change of one streamer between two polls.
type Transition struct {
	Streamer db.Streamer
	Online   bool
}

// Diff compares the persisted status of streamers with the fetched online set.
// A failed fetch yields no transitions at all.
func Diff(streamers []db.Streamer, online streams.OnlineSet, fetchErr error) []Transition {
	if fetchErr != nil {
		return nil
	}
	var transitions []Transition
	for _, streamer := range streamers {
		isLive := online.Has(streamer.Username)
		if isLive != streamer.IsOnline {
			transitions = append(transitions, Transition{Streamer: streamer, Online: isLive})
		}
	}
	return transitions
}
