package bot

import (
	"context"
	"fmt"
	"github.com/ivandardi/StreamNotificationBot/notifier"
	"github.com/ivandardi/StreamNotificationBot/templates"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
	"strconv"
	"strings"
)

// Telegram allows about 30 messages per second across all chats.
const defaultRatePerSecond = 25

var goneErrors = []error{
	tele.ErrBlockedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrChatNotFound,
	tele.ErrUserIsDeactivated,
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Sink delivers notifications to "telegram:<chat id>" targets.
type Sink struct {
	bot     sender
	limiter *rate.Limiter
}

func NewSink(bot sender, ratePerSecond float64) *Sink {
	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}
	return &Sink{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

func (s *Sink) Deliver(ctx context.Context, target string, n notifier.Notification) error {
	chatId, err := parseTarget(target)
	if err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}
	message := fmt.Sprintf(templates.Live, n.Username, n.Service, n.StreamURL)
	_, err = s.bot.Send(tele.ChatID(chatId), message)
	if err == nil {
		return nil
	}
	for _, gone := range goneErrors {
		if errors.Is(err, gone) {
			return errors.Wrapf(notifier.ErrInvalidTarget, "chat %v: %v", chatId, err)
		}
	}
	return errors.Wrapf(err, "unable to notify chat %v", chatId)
}

func parseTarget(target string) (int64, error) {
	scheme, raw, found := strings.Cut(target, ":")
	if !found || scheme != TargetScheme {
		return 0, errors.Wrapf(notifier.ErrInvalidTarget, "%q is not a telegram target", target)
	}
	chatId, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(notifier.ErrInvalidTarget, "%q: %v", target, err)
	}
	return chatId, nil
}
