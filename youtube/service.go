// Package youtube implements streams.Adapter with the YouTube Data API. A tracked
// channel is considered online while a search for its live broadcasts is non-empty.
package youtube

import (
	"context"
	"fmt"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	ytApi "google.golang.org/api/youtube/v3"
	"sync"
)

const (
	Name            = "youtube"
	iconURL         = "https://www.youtube.com/s/desktop/favicon_144x144.png"
	streamURLFormat = "https://www.youtube.com/channel/%v/live"
	liveEventType   = "live"
	videoType       = "video"
	// each search costs quota, keep the fan-out small
	searchConcurrency = 4
)

var (
	snippetPart = []string{"id", "snippet"}
	idPart      = []string{"id"}
)

type Service struct {
	yt *ytApi.Service
}

// NewService creates the API client. Extra options are appended after the API key,
// so an endpoint or HTTP client override wins.
func NewService(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Service, error) {
	options := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := ytApi.NewService(ctx, options...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create youtube client")
	}
	return &Service{service}, nil
}

func (s *Service) Name() string {
	return Name
}

func (s *Service) ValidateUsername(raw string) (string, error) {
	return streams.ValidateUsername(raw)
}

func (s *Service) ResolveStreamer(ctx context.Context, username string) (streams.Channel, error) {
	response, err := s.yt.Channels.List(snippetPart).ForUsername(username).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return streams.Channel{}, errors.Wrapf(streams.ErrFetchFailed, "error on calling youtube api: %v", err)
	}
	if len(response.Items) == 0 {
		return streams.Channel{}, errors.Wrapf(streams.ErrStreamerNotFound, "%v", username)
	}
	channel := response.Items[0]
	if channel.Id == "" {
		return streams.Channel{}, errors.Wrap(streams.ErrUnexpectedAPI, "channel id is missing in response")
	}
	var title string
	if channel.Snippet != nil {
		title = channel.Snippet.Title
	}
	return streams.Channel{ProviderID: channel.Id, DisplayName: title}, nil
}

// FetchOnlineSet runs one live search per tracked channel. Any failed search fails
// the whole fetch so the caller never mistakes an outage for everyone going offline.
func (s *Service) FetchOnlineSet(ctx context.Context, tracked []streams.Tracked) (streams.OnlineSet, error) {
	online := streams.NewOnlineSet()
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for _, t := range tracked {
		t := t
		g.Go(func() error {
			live, err := s.isLive(ctx, t.ProviderID)
			if err != nil {
				return errors.Wrapf(err, "channel %v", t.Username)
			}
			if live {
				mu.Lock()
				online.Add(t.Username)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return online, nil
}

func (s *Service) isLive(ctx context.Context, channelId string) (bool, error) {
	response, err := s.yt.Search.
		List(idPart).
		Context(ctx).
		ChannelId(channelId).
		EventType(liveEventType).
		Type(videoType).
		MaxResults(1).
		Do()
	if err != nil {
		return false, errors.Wrapf(streams.ErrFetchFailed, "error during search for live streams: %v", err)
	}
	return len(response.Items) > 0, nil
}

func (s *Service) StreamURL(t streams.Tracked) string {
	return fmt.Sprintf(streamURLFormat, t.ProviderID)
}

func (s *Service) IconURL() string {
	return iconURL
}
