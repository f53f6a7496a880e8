// Package picarto implements streams.Adapter on top of the public Picarto v1 API.
package picarto

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	Name            = "picarto"
	DefaultBaseURL  = "https://api.picarto.tv/api/v1"
	iconURL         = "https://picarto.tv/images/Picarto_logo.png"
	streamURLFormat = "https://picarto.tv/%v"
	requestTimeout  = time.Second * 10
)

type Service struct {
	baseURL string
	client  *http.Client
}

func NewService(baseURL string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type channel struct {
	UserId int64  `json:"user_id"`
	Name   string `json:"name"`
}

func (s *Service) Name() string {
	return Name
}

func (s *Service) ValidateUsername(raw string) (string, error) {
	return streams.ValidateUsername(raw)
}

func (s *Service) ResolveStreamer(ctx context.Context, username string) (streams.Channel, error) {
	response, err := s.get(ctx, "/channel/name/"+url.PathEscape(username), nil)
	if err != nil {
		return streams.Channel{}, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return streams.Channel{}, errors.Wrapf(streams.ErrStreamerNotFound, "picarto returned %v for %v", response.Status, username)
	}
	var c channel
	if err := json.NewDecoder(response.Body).Decode(&c); err != nil {
		return streams.Channel{}, errors.Wrapf(streams.ErrUnexpectedAPI, "unable to decode picarto channel: %v", err)
	}
	if c.UserId == 0 || c.Name == "" {
		return streams.Channel{}, errors.Wrap(streams.ErrUnexpectedAPI, "picarto channel without id or name")
	}
	return streams.Channel{
		ProviderID:  strconv.FormatInt(c.UserId, 10),
		DisplayName: c.Name,
	}, nil
}

// FetchOnlineSet asks for every online channel in one request and keeps the
// tracked ones.
func (s *Service) FetchOnlineSet(ctx context.Context, tracked []streams.Tracked) (streams.OnlineSet, error) {
	online := streams.NewOnlineSet()
	if len(tracked) == 0 {
		return online, nil
	}
	params := url.Values{}
	params.Set("adult", "true")
	params.Set("gaming", "true")
	response, err := s.get(ctx, "/online", params)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(streams.ErrFetchFailed, "picarto returned %v", response.Status)
	}
	var channels []channel
	if err := json.NewDecoder(response.Body).Decode(&channels); err != nil {
		return nil, errors.Wrapf(streams.ErrUnexpectedAPI, "unable to decode picarto online list: %v", err)
	}
	wanted := make(map[string]struct{}, len(tracked))
	for _, t := range tracked {
		wanted[t.Username] = struct{}{}
	}
	for _, c := range channels {
		name := strings.ToLower(c.Name)
		if _, ok := wanted[name]; ok {
			online.Add(name)
		}
	}
	return online, nil
}

func (s *Service) StreamURL(t streams.Tracked) string {
	return fmt.Sprintf(streamURLFormat, t.Username)
}

func (s *Service) IconURL() string {
	return iconURL
}

func (s *Service) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u := s.baseURL + path
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build picarto request")
	}
	request.Header.Set("Accept", "application/json")
	response, err := s.client.Do(request)
	if err != nil {
		return nil, errors.Wrapf(streams.ErrFetchFailed, "picarto request failed: %v", err)
	}
	return response, nil
}
