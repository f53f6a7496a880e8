package notifier

import (
	"context"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/metrics"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"time"
)

const DefaultDeliveryTimeout = time.Second * 10

type Dispatcher struct {
	store   Store
	sink    Sink
	timeout time.Duration
	log     zerolog.Logger
}

func NewDispatcher(store Store, sink Sink, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		sink:    sink,
		timeout: DefaultDeliveryTimeout,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// SetDeliveryTimeout bounds every single Deliver call.
func (d *Dispatcher) SetDeliveryTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Notify delivers a become-online notification to every subscriber of streamer and
// returns how many deliveries succeeded. A failed delivery never affects the others
// and is not retried. Subscribers whose target is gone for good are removed.
func (d *Dispatcher) Notify(ctx context.Context, adapter streams.Adapter, streamer db.Streamer) int {
	log := d.log.With().Str("service", streamer.Service).Str("username", streamer.Username).Logger()
	subscribers, err := d.store.ListSubscribers(ctx, streamer.Id)
	if err != nil {
		log.Warn().Err(err).Msg("unable to list subscribers")
		return 0
	}
	tracked := streams.Tracked{Username: streamer.Username, ProviderID: streamer.ProviderId}
	n := Notification{
		Username:  streamer.Username,
		Service:   streamer.Service,
		StreamURL: adapter.StreamURL(tracked),
		IconURL:   adapter.IconURL(),
	}
	delivered := 0
	for _, subscriber := range subscribers {
		err := d.deliver(ctx, subscriber.Target, n)
		switch {
		case err == nil:
			delivered++
			metrics.Deliveries.WithLabelValues(streamer.Service, metrics.ResultOK).Inc()
		case errors.Is(err, ErrInvalidTarget):
			metrics.Deliveries.WithLabelValues(streamer.Service, metrics.ResultInvalid).Inc()
			log.Info().Err(err).Str("subscriber", subscriber.Id).Msg("removing unreachable subscriber")
			if err := d.store.DeleteSubscriber(ctx, subscriber.Id); err != nil {
				log.Warn().Err(err).Str("subscriber", subscriber.Id).Msg("unable to remove subscriber")
			}
		default:
			metrics.Deliveries.WithLabelValues(streamer.Service, metrics.ResultError).Inc()
			log.Warn().Err(err).Str("subscriber", subscriber.Id).Msg("delivery failed")
		}
	}
	log.Debug().Int("delivered", delivered).Int("subscribers", len(subscribers)).Msg("notified")
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, target string, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.sink.Deliver(ctx, target, n)
}
