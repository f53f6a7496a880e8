package main

import (
	"context"
	"fmt"
	"github.com/go-redis/redis"
	"github.com/ivandardi/StreamNotificationBot/bot"
	"github.com/ivandardi/StreamNotificationBot/cache"
	"github.com/ivandardi/StreamNotificationBot/config"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/logging"
	"github.com/ivandardi/StreamNotificationBot/mutex"
	"github.com/ivandardi/StreamNotificationBot/notifier"
	"github.com/ivandardi/StreamNotificationBot/picarto"
	"github.com/ivandardi/StreamNotificationBot/server"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/ivandardi/StreamNotificationBot/subscription"
	"github.com/ivandardi/StreamNotificationBot/twitch"
	"github.com/ivandardi/StreamNotificationBot/webhook"
	"github.com/ivandardi/StreamNotificationBot/youtube"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Println(config.Usage())
		return
	}
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	c, err := config.Load(path)
	if err != nil {
		fallback := logging.New(logging.Config{})
		fallback.Fatal().Err(err).Msg("unable to load config")
		return
	}
	logger := logging.New(c.Log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, os.Interrupt, syscall.SIGTERM)
		<-s
		logger.Info().Msg("shutting down")
		cancel()
	}()
	if err := run(ctx, c, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped with error")
	}
}

func run(ctx context.Context, c config.Config, logger zerolog.Logger) error {
	store, err := db.New(c.Database.Driver, c.Database.DSN)
	if err != nil {
		return err
	}
	// closed last, after every loop and host is gone
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("unable to close store")
		}
	}()
	store.SetTimeout(c.Database.Timeout)
	if c.Database.Debug {
		store.EnableDebug()
	}
	if err := store.Migrate(ctx); err != nil {
		return errors.Wrap(err, "unable to migrate store")
	}

	var lookup cache.Lookup = cache.Nop{}
	var locker mutex.Locker = mutex.Nop{}
	if c.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{Addr: c.Redis.Address})
		defer client.Close()
		if err := client.Ping().Err(); err != nil {
			logger.Warn().Err(err).Msg("redis is unreachable, lookups and locks will fail until it is back")
		}
		lookup = cache.NewRedis(client, c.Redis.LookupTTL, c.Redis.NegativeTTL, logger)
		locker = mutex.NewBuilder(client)
	}

	adapters, intervals, err := buildAdapters(ctx, c)
	if err != nil {
		return err
	}
	registry := streams.NewRegistry(adapters...)
	commands := subscription.NewService(registry, store, lookup, logger)

	router := notifier.NewRouter()
	hook := webhook.NewSink(webhook.DefaultTimeout)
	router.Handle("http", hook)
	router.Handle("https", hook)

	var telegram *bot.Bot
	if c.Telegram.Token != "" {
		telegram, err = bot.New(bot.Config{
			Token:         c.Telegram.Token,
			PollTimeout:   c.Telegram.PollTimeout,
			RatePerSecond: c.Telegram.RatePerSecond,
		}, commands, logger)
		if err != nil {
			return err
		}
		router.Handle(bot.TargetScheme, telegram.Sink())
	}

	dispatcher := notifier.NewDispatcher(store, router, logger)
	dispatcher.SetDeliveryTimeout(c.Poll.DeliveryTimeout)
	clock := clockwork.NewRealClock()
	var pollers []*notifier.Poller
	for _, adapter := range registry.All() {
		pollers = append(pollers, notifier.NewPoller(adapter, store, dispatcher, locker, clock, notifier.PollerConfig{
			Interval:      intervals[adapter.Name()],
			TickTimeout:   c.Poll.TickTimeout,
			ShutdownGrace: c.Poll.ShutdownGrace,
		}, logger))
	}
	scheduler := notifier.NewScheduler(pollers...)

	hostBase, stopHosts := context.WithCancel(context.Background())
	defer stopHosts()
	hosts, hostCtx := errgroup.WithContext(hostBase)
	if c.HTTP.Address != "" {
		api := server.New(commands, store, router, c.HTTP.Token, logger)
		hosts.Go(func() error {
			return api.Run(hostCtx, c.HTTP.Address)
		})
	}
	if telegram != nil {
		hosts.Go(func() error {
			telegram.Start()
			return nil
		})
		hosts.Go(func() error {
			<-hostCtx.Done()
			telegram.Stop()
			return nil
		})
	}

	pollCtx, stopPolling := context.WithCancel(context.Background())
	defer stopPolling()
	ready := make(chan struct{})
	polling := make(chan error, 1)
	go func() {
		polling <- scheduler.Run(pollCtx, ready)
	}()
	close(ready)
	logger.Info().Strs("services", registry.Names()).Msg("started")

	select {
	case <-ctx.Done():
	case <-hostCtx.Done():
		logger.Warn().Msg("a host stopped unexpectedly")
	}

	stopPolling()
	pollErr := <-polling
	stopHosts()
	hostErr := hosts.Wait()
	if pollErr != nil {
		return pollErr
	}
	return hostErr
}

func buildAdapters(ctx context.Context, c config.Config) ([]streams.Adapter, map[string]time.Duration, error) {
	var adapters []streams.Adapter
	intervals := make(map[string]time.Duration)
	if !c.Picarto.Disabled {
		adapters = append(adapters, picarto.NewService(c.Picarto.BaseURL))
		intervals[picarto.Name] = c.Picarto.Interval
	}
	if c.Twitch.Enabled() {
		adapters = append(adapters, twitch.NewService(c.Twitch.ClientId, c.Twitch.ClientSecret, "", ""))
		intervals[twitch.Name] = c.Twitch.Interval
	}
	if c.Youtube.Enabled() {
		yt, err := youtube.NewService(ctx, c.Youtube.APIKey)
		if err != nil {
			return nil, nil, err
		}
		adapters = append(adapters, yt)
		intervals[youtube.Name] = c.Youtube.Interval
	}
	return adapters, intervals, nil
}
