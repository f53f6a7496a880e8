// Package cache memoises provider lookups (username -> provider id) in Redis with
// bounded lifetimes. Unknown names are cached briefly so repeated typos do not hit
// the provider.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/go-redis/redis"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"time"
)

const (
	keyPattern      = "lookup:%v:%v"
	notFoundValue   = "-"
	DefaultTTL      = time.Hour * 24
	DefaultNegative = time.Minute * 5
)

// ResolveFunc asks the provider.
type ResolveFunc func(ctx context.Context) (streams.Channel, error)

type Lookup interface {
	Resolve(ctx context.Context, service, username string, resolve ResolveFunc) (streams.Channel, error)
	Invalidate(ctx context.Context, service, username string) error
}

type Redis struct {
	client      *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
	log         zerolog.Logger
}

func NewRedis(client *redis.Client, ttl, negativeTTL time.Duration, log zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = DefaultNegative
	}
	return &Redis{
		client:      client,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		log:         log.With().Str("component", "cache").Logger(),
	}
}

// Resolve serves from Redis when possible. Redis failures degrade to a direct
// provider call.
func (r *Redis) Resolve(ctx context.Context, service, username string, resolve ResolveFunc) (streams.Channel, error) {
	key := fmt.Sprintf(keyPattern, service, username)
	client := r.client.WithContext(ctx)
	cached, err := client.Get(key).Result()
	switch {
	case err == nil && cached == notFoundValue:
		return streams.Channel{}, errors.Wrapf(streams.ErrStreamerNotFound, "%v (cached)", username)
	case err == nil:
		var channel streams.Channel
		if err := json.Unmarshal([]byte(cached), &channel); err == nil && channel.ProviderID != "" {
			return channel, nil
		}
		r.log.Warn().Str("key", key).Msg("dropping malformed cache entry")
	case err != redis.Nil:
		r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	channel, err := resolve(ctx)
	if errors.Is(err, streams.ErrStreamerNotFound) {
		r.store(client, key, notFoundValue, r.negativeTTL)
		return streams.Channel{}, err
	}
	if err != nil {
		return streams.Channel{}, err
	}
	encoded, err := json.Marshal(channel)
	if err != nil {
		return channel, nil
	}
	r.store(client, key, string(encoded), r.ttl)
	return channel, nil
}

func (r *Redis) store(client *redis.Client, key, value string, ttl time.Duration) {
	if err := client.Set(key, value, ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, service, username string) error {
	key := fmt.Sprintf(keyPattern, service, username)
	if err := r.client.WithContext(ctx).Del(key).Err(); err != nil {
		return errors.Wrapf(err, "unable to invalidate %v", key)
	}
	return nil
}

// Nop always asks the provider.
type Nop struct{}

func (Nop) Resolve(ctx context.Context, _, _ string, resolve ResolveFunc) (streams.Channel, error) {
	return resolve(ctx)
}

func (Nop) Invalidate(context.Context, string, string) error {
	return nil
}
