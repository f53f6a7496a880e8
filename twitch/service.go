// Package twitch implements streams.Adapter on top of the Helix API using an app
// access token obtained with the client credentials flow.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	Name            = "twitch"
	DefaultHelixURL = "https://api.twitch.tv/helix"
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"
	iconURL         = "https://static.twitchcdn.net/assets/favicon-32-e29e246c157142c94346.png"
	streamURLFormat = "https://twitch.tv/%v"
	requestTimeout  = time.Second * 10
	// Helix maximum for user_login filters per request
	maxLoginsPerRequest = 100
)

type Service struct {
	clientId string
	helixURL string
	client   *http.Client
}

// NewService builds a Helix client. Empty URLs fall back to the public endpoints.
func NewService(clientId, clientSecret, helixURL, tokenURL string) *Service {
	if helixURL == "" {
		helixURL = DefaultHelixURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	credentials := clientcredentials.Config{
		ClientID:     clientId,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: requestTimeout}
	client := credentials.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	client.Timeout = requestTimeout
	return &Service{
		clientId: clientId,
		helixURL: strings.TrimSuffix(helixURL, "/"),
		client:   client,
	}
}

type usersResponse struct {
	Data []struct {
		Id          string `json:"id"`
		Login       string `json:"login"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

type streamsResponse struct {
	Data []struct {
		UserLogin string `json:"user_login"`
		Type      string `json:"type"`
	} `json:"data"`
}

func (s *Service) Name() string {
	return Name
}

func (s *Service) ValidateUsername(raw string) (string, error) {
	return streams.ValidateUsername(raw)
}

func (s *Service) ResolveStreamer(ctx context.Context, username string) (streams.Channel, error) {
	params := url.Values{}
	params.Set("login", username)
	response, err := s.get(ctx, "/users", params)
	if err != nil {
		return streams.Channel{}, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return streams.Channel{}, errors.Wrapf(streams.ErrStreamerNotFound, "twitch returned %v for %v", response.Status, username)
	}
	var users usersResponse
	if err := json.NewDecoder(response.Body).Decode(&users); err != nil {
		return streams.Channel{}, errors.Wrapf(streams.ErrUnexpectedAPI, "unable to decode twitch users: %v", err)
	}
	if len(users.Data) == 0 {
		return streams.Channel{}, errors.Wrapf(streams.ErrStreamerNotFound, "%v", username)
	}
	user := users.Data[0]
	if user.Id == "" {
		return streams.Channel{}, errors.Wrap(streams.ErrUnexpectedAPI, "twitch user without id")
	}
	return streams.Channel{ProviderID: user.Id, DisplayName: user.DisplayName}, nil
}

// FetchOnlineSet queries live streams in batches of 100 logins. One failed batch
// fails the whole fetch.
func (s *Service) FetchOnlineSet(ctx context.Context, tracked []streams.Tracked) (streams.OnlineSet, error) {
	online := streams.NewOnlineSet()
	for i, batch := range streams.Batch(tracked, maxLoginsPerRequest) {
		params := url.Values{}
		for _, t := range batch {
			params.Add("user_login", t.Username)
		}
		params.Set("first", strconv.Itoa(maxLoginsPerRequest))
		if err := s.fetchBatch(ctx, params, online); err != nil {
			return nil, errors.Wrapf(err, "batch %v", i)
		}
	}
	return online, nil
}

func (s *Service) fetchBatch(ctx context.Context, params url.Values, online streams.OnlineSet) error {
	response, err := s.get(ctx, "/streams", params)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return errors.Wrapf(streams.ErrFetchFailed, "twitch returned %v", response.Status)
	}
	var live streamsResponse
	if err := json.NewDecoder(response.Body).Decode(&live); err != nil {
		return errors.Wrapf(streams.ErrUnexpectedAPI, "unable to decode twitch streams: %v", err)
	}
	for _, stream := range live.Data {
		if stream.Type != "" && stream.Type != "live" {
			continue
		}
		online.Add(strings.ToLower(stream.UserLogin))
	}
	return nil
}

func (s *Service) StreamURL(t streams.Tracked) string {
	return fmt.Sprintf(streamURLFormat, t.Username)
}

func (s *Service) IconURL() string {
	return iconURL
}

func (s *Service) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.helixURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build twitch request")
	}
	request.Header.Set("Client-Id", s.clientId)
	response, err := s.client.Do(request)
	if err != nil {
		return nil, errors.Wrapf(streams.ErrFetchFailed, "twitch request failed: %v", err)
	}
	return response, nil
}
