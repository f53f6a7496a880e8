// Package notifier turns provider presence into notifications: it diffs each poll
// against persisted state, persists the transitions and fans become-online events
// out to subscribers.
package notifier

import (
	"context"
	"github.com/google/uuid"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/pkg/errors"
	"strings"
	"sync"
)

// ErrInvalidTarget means a notification target can never be delivered to again.
var ErrInvalidTarget = errors.New("invalid notification target")

type Notification struct {
	Username  string `json:"username"`
	Service   string `json:"service"`
	StreamURL string `json:"stream_url"`
	IconURL   string `json:"icon_url"`
}

// Sink delivers a notification to a subscriber's target.
type Sink interface {
	Deliver(ctx context.Context, target string, n Notification) error
}

// Store is the part of the subscription store the notifier needs.
type Store interface {
	ListActiveStreamers(ctx context.Context, service string) ([]db.Streamer, error)
	ListSubscribers(ctx context.Context, streamerId uuid.UUID) ([]db.Subscriber, error)
	SetOnlineStatus(ctx context.Context, streamerId uuid.UUID, online bool) error
	DeleteSubscriber(ctx context.Context, subscriberId string) error
}

// Router picks a sink by the scheme of the target ("telegram:42", "https://...").
type Router struct {
	mu     sync.RWMutex
	routes map[string]Sink
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Sink)}
}

func (r *Router) Handle(scheme string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[strings.ToLower(scheme)] = sink
}

func (r *Router) Supports(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[strings.ToLower(scheme)]
	return ok
}

func (r *Router) Deliver(ctx context.Context, target string, n Notification) error {
	scheme, _, found := strings.Cut(target, ":")
	if !found {
		return errors.Wrapf(ErrInvalidTarget, "target %q has no scheme", target)
	}
	r.mu.RLock()
	sink, ok := r.routes[strings.ToLower(scheme)]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrInvalidTarget, "no sink for scheme %q", scheme)
	}
	return sink.Deliver(ctx, target, n)
}
