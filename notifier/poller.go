package notifier

import (
	"context"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/metrics"
	"github.com/ivandardi/StreamNotificationBot/mutex"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"runtime/debug"
	"time"
)

const (
	DefaultInterval      = time.Minute
	DefaultTickTimeout   = time.Second * 30
	DefaultShutdownGrace = time.Second * 5
)

type PollerConfig struct {
	Interval time.Duration
	// TickTimeout bounds a whole tick, provider calls included.
	TickTimeout time.Duration
	// ShutdownGrace is how long an in-flight tick may continue after shutdown starts.
	ShutdownGrace time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = DefaultTickTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}

// Poller periodically polls one service. Ticks never overlap.
type Poller struct {
	adapter    streams.Adapter
	store      Store
	dispatcher *Dispatcher
	locker     mutex.Locker
	clock      clockwork.Clock
	config     PollerConfig
	log        zerolog.Logger
}

func NewPoller(
	adapter streams.Adapter,
	store Store,
	dispatcher *Dispatcher,
	locker mutex.Locker,
	clock clockwork.Clock,
	config PollerConfig,
	log zerolog.Logger,
) *Poller {
	if locker == nil {
		locker = mutex.Nop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		adapter:    adapter,
		store:      store,
		dispatcher: dispatcher,
		locker:     locker,
		clock:      clock,
		config:     config.withDefaults(),
		log:        log.With().Str("component", "poller").Str("service", adapter.Name()).Logger(),
	}
}

func (p *Poller) Service() string {
	return p.adapter.Name()
}

// Run waits for ready, ticks immediately and then once per interval until ctx is
// cancelled. It returns after the in-flight tick, if any, has finished.
func (p *Poller) Run(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
	case <-ctx.Done():
		return nil
	}
	ticker := p.clock.NewTicker(p.config.Interval)
	defer ticker.Stop()
	p.log.Info().Dur("interval", p.config.Interval).Msg("polling started")
	for {
		if err := p.Tick(ctx); err != nil {
			p.log.Warn().Err(err).Msg("tick failed")
		}
		select {
		case <-ctx.Done():
			p.log.Info().Msg("polling stopped")
			return nil
		case <-ticker.Chan():
		}
	}
}

// Tick runs a single poll. Any failure leaves persisted state as it was.
func (p *Poller) Tick(parent context.Context) (err error) {
	service := p.adapter.Name()
	start := p.clock.Now()
	result := metrics.ResultOK
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("stack", string(debug.Stack())).Msgf("tick panicked: %v", r)
			err = errors.Errorf("tick panicked: %v", r)
		}
		if err != nil {
			result = metrics.ResultError
		}
		metrics.PollTicks.WithLabelValues(service, result).Inc()
		metrics.PollDuration.WithLabelValues(service).Observe(p.clock.Since(start).Seconds())
	}()

	ctx, cancel := p.graceContext(parent, p.config.TickTimeout)
	defer cancel()

	unlock, err := p.locker.TryLock(ctx, service, p.config.Interval)
	if errors.Is(err, mutex.ErrNotAcquired) {
		result = metrics.ResultSkipped
		p.log.Debug().Msg("another instance is polling, skipping tick")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "unable to take poll lock")
	}
	defer unlock()

	streamers, err := p.store.ListActiveStreamers(ctx, service)
	if err != nil {
		return errors.Wrap(err, "unable to list streamers")
	}
	metrics.TrackedStreamers.WithLabelValues(service).Set(float64(len(streamers)))
	if len(streamers) == 0 {
		return nil
	}

	online, fetchErr := p.adapter.FetchOnlineSet(ctx, tracked(streamers))
	transitions := Diff(streamers, online, fetchErr)
	if fetchErr != nil {
		return errors.Wrap(fetchErr, "unable to fetch online set")
	}

	// persisting and fan-out are bounded by the store and the dispatcher, not by TickTimeout
	applyCtx, stopApply := p.graceContext(parent, 0)
	defer stopApply()
	for _, transition := range transitions {
		streamer := transition.Streamer
		if err := p.store.SetOnlineStatus(applyCtx, streamer.Id, transition.Online); err != nil {
			// detected again next tick
			p.log.Warn().Err(err).Str("username", streamer.Username).Msg("unable to persist transition")
			continue
		}
		if !transition.Online {
			metrics.Transitions.WithLabelValues(service, metrics.DirectionOffline).Inc()
			p.log.Debug().Str("username", streamer.Username).Msg("went offline")
			continue
		}
		metrics.Transitions.WithLabelValues(service, metrics.DirectionOnline).Inc()
		p.log.Info().Str("username", streamer.Username).Msg("went online")
		p.dispatcher.Notify(applyCtx, p.adapter, streamer)
	}
	p.log.Debug().Int("streamers", len(streamers)).Int("online", len(online)).
		Int("transitions", len(transitions)).Msg("tick finished")
	return nil
}

// graceContext outlives parent by ShutdownGrace so in-flight work can finish
// cleanly during shutdown. A zero timeout means no deadline of its own.
func (p *Poller) graceContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.WithoutCancel(parent), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.WithoutCancel(parent))
	}
	stop := context.AfterFunc(parent, func() {
		time.AfterFunc(p.config.ShutdownGrace, cancel)
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

func tracked(streamers []db.Streamer) []streams.Tracked {
	result := make([]streams.Tracked, 0, len(streamers))
	for _, streamer := range streamers {
		result = append(result, streams.Tracked{Username: streamer.Username, ProviderID: streamer.ProviderId})
	}
	return result
}
