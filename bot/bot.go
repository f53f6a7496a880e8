package bot

import (
	"github.com/ivandardi/StreamNotificationBot/templates"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
	"time"
)

type Config struct {
	Token         string
	PollTimeout   time.Duration
	RatePerSecond float64
}

// Bot is the Telegram host of the command layer and the Telegram notification sink.
type Bot struct {
	bot     *tele.Bot
	service *Service
	sink    *Sink
	log     zerolog.Logger
}

func New(config Config, commands Commands, log zerolog.Logger) (*Bot, error) {
	log = log.With().Str("component", "telegram").Logger()
	s := tele.Settings{
		Token: config.Token,
		Poller: &tele.LongPoller{
			Timeout: config.PollTimeout,
			AllowedUpdates: []string{
				"message",
				"callback_query",
				"my_chat_member",
			},
		},
	}
	bot, err := tele.NewBot(s)
	if err != nil {
		return nil, errors.Wrap(err, "error during creation of a new bot")
	}

	botService := NewService(commands, bot, log)

	bot.Handle("/start", botService.Help)
	bot.Handle("/help", botService.Help)
	bot.Handle("/add", botService.AddSubscription)
	bot.Handle("/list", botService.ListSubscriptions)
	bot.Handle("/remove", botService.RemoveSubscription)
	bot.Handle(tele.OnCallback, func(context tele.Context) error {
		defer func() {
			err := context.Respond()
			if err != nil {
				log.Warn().Err(err).Msg("unable to answer callback")
			}
		}()
		return botService.ProcessCallback(context)
	})
	bot.Handle(tele.OnMyChatMember, botService.OnMembershipChange)

	bot.OnError = func(err error, context tele.Context) {
		log.Error().Err(err).Msg("handler failed")
		if context == nil || context.Chat() == nil {
			return
		}
		err = context.Send(templates.UnexpectedError)
		if err != nil {
			log.Warn().Err(err).Msg("unable to report error")
		}
	}

	return &Bot{
		bot:     bot,
		service: botService,
		sink:    NewSink(bot, config.RatePerSecond),
		log:     log,
	}, nil
}

func (b *Bot) Sink() *Sink {
	return b.sink
}

// Start blocks until Stop is called.
func (b *Bot) Start() {
	b.log.Info().Str("username", b.bot.Me.Username).Msg("bot started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
	b.log.Info().Msg("bot stopped")
}
