// Package streams defines the capability set every streaming provider integration
// implements and the static registry the rest of the bot dispatches through.
package streams

import (
	"context"
	"github.com/pkg/errors"
)

var (
	ErrInvalidUsername  = errors.New("invalid username")
	ErrStreamerNotFound = errors.New("streamer not found")
	ErrUnknownService   = errors.New("unknown service")
	// ErrFetchFailed means the provider could not tell who is online. It is never
	// equivalent to an empty OnlineSet.
	ErrFetchFailed   = errors.New("unable to fetch online streamers")
	ErrUnexpectedAPI = errors.New("unexpected api response")
)

// Channel is what a provider reports for a single-channel lookup.
type Channel struct {
	ProviderID  string
	DisplayName string
}

// Tracked identifies a streamer the bot already knows about.
type Tracked struct {
	Username   string
	ProviderID string
}

// Adapter is implemented once per streaming provider.
type Adapter interface {
	Name() string
	ValidateUsername(raw string) (string, error)
	ResolveStreamer(ctx context.Context, username string) (Channel, error)
	// FetchOnlineSet returns the subset of tracked usernames that are live right now.
	FetchOnlineSet(ctx context.Context, tracked []Tracked) (OnlineSet, error)
	StreamURL(t Tracked) string
	IconURL() string
}

// OnlineSet holds canonical usernames of live streamers.
type OnlineSet map[string]struct{}

func NewOnlineSet(usernames ...string) OnlineSet {
	set := make(OnlineSet, len(usernames))
	for _, username := range usernames {
		set.Add(username)
	}
	return set
}

func (s OnlineSet) Add(username string) {
	s[username] = struct{}{}
}

func (s OnlineSet) Has(username string) bool {
	_, ok := s[username]
	return ok
}
