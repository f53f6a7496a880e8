// Package subscription is the command layer shared by the Telegram bot and the
// HTTP API: it validates input, resolves streamers and talks to the store.
package subscription

import (
	"context"
	"github.com/ivandardi/StreamNotificationBot/cache"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Store interface {
	AddSubscription(ctx context.Context, subscriberId, target, service, username, providerId string) (db.Streamer, error)
	DeleteSubscription(ctx context.Context, subscriberId, service, username string) (bool, error)
	DeleteSubscriber(ctx context.Context, subscriberId string) error
	GetStreamer(ctx context.Context, service, username string) (db.Streamer, error)
	ListSubscriptions(ctx context.Context, subscriberId, service string) ([]db.Streamer, error)
}

type Service struct {
	registry *streams.Registry
	store    Store
	lookup   cache.Lookup
	log      zerolog.Logger
}

func NewService(registry *streams.Registry, store Store, lookup cache.Lookup, log zerolog.Logger) *Service {
	if lookup == nil {
		lookup = cache.Nop{}
	}
	return &Service{
		registry: registry,
		store:    store,
		lookup:   lookup,
		log:      log.With().Str("component", "subscription").Logger(),
	}
}

// Subscribe links the subscriber to service:username. Known streamers are taken
// from the store; unknown ones are resolved with the provider first.
func (s *Service) Subscribe(ctx context.Context, subscriberId, target, service, username string) (db.Streamer, error) {
	adapter, canonical, err := s.validate(service, username)
	if err != nil {
		return db.Streamer{}, err
	}
	service = adapter.Name()
	providerId, err := s.providerId(ctx, adapter, canonical)
	if err != nil {
		return db.Streamer{}, err
	}
	streamer, err := s.store.AddSubscription(ctx, subscriberId, target, service, canonical, providerId)
	if err != nil && !errors.Is(err, db.ErrAlreadySubscribed) {
		// the cached id may be what broke the insert
		if invalidateErr := s.lookup.Invalidate(ctx, service, canonical); invalidateErr != nil {
			s.log.Warn().Err(invalidateErr).Msg("unable to invalidate lookup")
		}
		return db.Streamer{}, errors.Wrapf(err, "unable to subscribe %v to %v:%v", subscriberId, service, canonical)
	}
	if err != nil {
		return db.Streamer{}, errors.Wrapf(err, "%v:%v", service, canonical)
	}
	s.log.Info().Str("subscriber", subscriberId).Str("service", service).Str("username", canonical).Msg("subscribed")
	return streamer, nil
}

func (s *Service) providerId(ctx context.Context, adapter streams.Adapter, username string) (string, error) {
	known, err := s.store.GetStreamer(ctx, adapter.Name(), username)
	if err == nil {
		return known.ProviderId, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return "", errors.Wrap(err, "unable to look up streamer")
	}
	channel, err := s.lookup.Resolve(ctx, adapter.Name(), username, func(ctx context.Context) (streams.Channel, error) {
		return adapter.ResolveStreamer(ctx, username)
	})
	if err != nil {
		return "", err
	}
	return channel.ProviderID, nil
}

// Unsubscribe reports whether a subscription was actually removed.
func (s *Service) Unsubscribe(ctx context.Context, subscriberId, service, username string) (bool, error) {
	adapter, canonical, err := s.validate(service, username)
	if err != nil {
		return false, err
	}
	removed, err := s.store.DeleteSubscription(ctx, subscriberId, adapter.Name(), canonical)
	if err != nil {
		return false, errors.Wrapf(err, "unable to unsubscribe %v from %v:%v", subscriberId, adapter.Name(), canonical)
	}
	return removed, nil
}

// List returns the subscriber's streamers. An empty service lists every service.
func (s *Service) List(ctx context.Context, subscriberId, service string) ([]db.Streamer, error) {
	if service != "" {
		adapter, err := s.registry.Get(service)
		if err != nil {
			return nil, err
		}
		service = adapter.Name()
	}
	streamers, err := s.store.ListSubscriptions(ctx, subscriberId, service)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list subscriptions of %v", subscriberId)
	}
	return streamers, nil
}

// Forget removes the subscriber and everything it is subscribed to.
func (s *Service) Forget(ctx context.Context, subscriberId string) error {
	if err := s.store.DeleteSubscriber(ctx, subscriberId); err != nil {
		return errors.Wrapf(err, "unable to forget %v", subscriberId)
	}
	s.log.Info().Str("subscriber", subscriberId).Msg("forgotten")
	return nil
}

func (s *Service) Services() []string {
	return s.registry.Names()
}

func (s *Service) validate(service, username string) (streams.Adapter, string, error) {
	adapter, err := s.registry.Get(service)
	if err != nil {
		return nil, "", err
	}
	canonical, err := adapter.ValidateUsername(username)
	if err != nil {
		return nil, "", err
	}
	return adapter, canonical, nil
}
