// Package webhook delivers notifications as JSON POSTs to http(s) targets.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/ivandardi/StreamNotificationBot/notifier"
	"github.com/pkg/errors"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout = time.Second * 10
	userAgent      = "StreamNotificationBot"
)

type Sink struct {
	client *http.Client
}

func NewSink(timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sink{client: &http.Client{Timeout: timeout}}
}

// Deliver posts n to target. 404 and 410 mean the hook is gone for good.
func (s *Sink) Deliver(ctx context.Context, target string, n notifier.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "unable to encode notification")
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(notifier.ErrInvalidTarget, "%v: %v", target, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", userAgent)
	response, err := s.client.Do(request)
	if err != nil {
		return errors.Wrapf(err, "unable to post to %v", target)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<16))
	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return nil
	case response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusGone:
		return errors.Wrapf(notifier.ErrInvalidTarget, "%v returned %v", target, response.Status)
	default:
		return errors.Errorf("%v returned %v", target, response.Status)
	}
}
