package bot

import (
	ctx "context"
	"fmt"
	"github.com/ivandardi/StreamNotificationBot/db"
	"github.com/ivandardi/StreamNotificationBot/notifier"
	"github.com/ivandardi/StreamNotificationBot/streams"
	"github.com/ivandardi/StreamNotificationBot/templates"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
	"strconv"
	"strings"
	"time"
)

const (
	TargetScheme    = "telegram"
	removeUnique    = "remove"
	callbackPrefix  = "\f" + removeUnique + "|"
	commandTimeout  = time.Second * 30
	maxRemoveButton = 100
)

// Commands is the command layer the bot drives.
type Commands interface {
	Subscribe(c ctx.Context, subscriberId, target, service, username string) (db.Streamer, error)
	Unsubscribe(c ctx.Context, subscriberId, service, username string) (bool, error)
	List(c ctx.Context, subscriberId, service string) ([]db.Streamer, error)
	Forget(c ctx.Context, subscriberId string) error
	Services() []string
}

var errChannelNotFound = errors.New("channel not found")

type chatDirectory interface {
	AdminsOf(chat *tele.Chat) ([]tele.ChatMember, error)
	ChatByUsername(name string) (*tele.Chat, error)
}

type Service struct {
	commands Commands
	chats    chatDirectory
	log      zerolog.Logger
}

func NewService(commands Commands, chats chatDirectory, log zerolog.Logger) *Service {
	return &Service{commands: commands, chats: chats, log: log}
}

func SubscriberId(chatId int64) string {
	return strconv.FormatInt(chatId, 10)
}

func Target(chatId int64) string {
	return fmt.Sprintf("%v:%v", TargetScheme, chatId)
}

func (s *Service) Help(context tele.Context) error {
	return context.Send(fmt.Sprintf(templates.Hello, strings.Join(s.commands.Services(), ", ")))
}

func (s *Service) AddSubscription(context tele.Context) error {
	c, cancel := ctx.WithTimeout(ctx.Background(), commandTimeout)
	defer cancel()
	reply, err := s.add(c, context.Chat(), context.Sender(), context.Args())
	if err != nil {
		return err
	}
	return context.Send(reply)
}

func (s *Service) add(c ctx.Context, chat *tele.Chat, sender *tele.User, args []string) (string, error) {
	if len(args) != 2 && len(args) != 3 {
		return templates.EmptyAdd, nil
	}
	destination, err := s.destination(chat, args)
	if errors.Is(err, errChannelNotFound) {
		return fmt.Sprintf(templates.ChannelNotFound, args[2]), nil
	}
	if err := s.authorize(chat, destination, sender); err != nil {
		return s.explain(err, args[0], args[1])
	}
	streamer, err := s.commands.Subscribe(c, SubscriberId(destination.ID), Target(destination.ID), args[0], args[1])
	if err != nil {
		return s.explain(err, args[0], args[1])
	}
	return fmt.Sprintf(templates.AddSuccess, streamer.Username, streamer.Service), nil
}

func (s *Service) ListSubscriptions(context tele.Context) error {
	c, cancel := ctx.WithTimeout(ctx.Background(), commandTimeout)
	defer cancel()
	reply, err := s.list(c, context.Chat(), context.Args())
	if err != nil {
		return err
	}
	return context.Send(reply)
}

func (s *Service) list(c ctx.Context, chat *tele.Chat, args []string) (string, error) {
	var service string
	if len(args) > 0 {
		service = args[0]
	}
	streamers, err := s.commands.List(c, SubscriberId(chat.ID), service)
	if err != nil {
		return s.explain(err, service, "")
	}
	if len(streamers) == 0 {
		return templates.NoChannels, nil
	}
	var lines []string
	for _, streamer := range streamers {
		format := templates.ChannelList
		if streamer.IsOnline {
			format = templates.ChannelListLive
		}
		lines = append(lines, fmt.Sprintf(format, streamer.Service, streamer.Username))
	}
	return strings.Join(lines, "\r\n"), nil
}

func (s *Service) RemoveSubscription(context tele.Context) error {
	c, cancel := ctx.WithTimeout(ctx.Background(), commandTimeout)
	defer cancel()
	args := context.Args()
	if len(args) == 0 {
		text, selector, err := s.removeKeyboard(c, context.Chat())
		if err != nil {
			return err
		}
		if selector == nil {
			return context.Send(text)
		}
		return context.Send(text, selector)
	}
	reply, err := s.removeNamed(c, context.Chat(), context.Sender(), args)
	if err != nil {
		return err
	}
	return context.Send(reply)
}

func (s *Service) removeNamed(c ctx.Context, chat *tele.Chat, sender *tele.User, args []string) (string, error) {
	if len(args) != 2 && len(args) != 3 {
		return templates.EmptyRemove, nil
	}
	destination, err := s.destination(chat, args)
	if errors.Is(err, errChannelNotFound) {
		return fmt.Sprintf(templates.ChannelNotFound, args[2]), nil
	}
	return s.remove(c, chat, destination, sender, args[0], args[1])
}

func (s *Service) removeKeyboard(c ctx.Context, chat *tele.Chat) (string, *tele.ReplyMarkup, error) {
	streamers, err := s.commands.List(c, SubscriberId(chat.ID), "")
	if err != nil {
		return "", nil, errors.Wrap(err, "cannot get subscriptions")
	}
	if len(streamers) == 0 {
		return templates.NoChannels, nil, nil
	}
	selector := &tele.ReplyMarkup{}
	var rows []tele.Row
	for i, streamer := range streamers {
		if i == maxRemoveButton {
			break
		}
		label := fmt.Sprintf(templates.ChannelList, streamer.Service, streamer.Username)
		data := selector.Data(label, removeUnique, streamer.Service, streamer.Username)
		rows = append(rows, selector.Row(data))
	}
	selector.Inline(rows...)
	return templates.SelectRemove, selector, nil
}

func (s *Service) remove(c ctx.Context, chat, destination *tele.Chat, sender *tele.User, service, username string) (string, error) {
	if err := s.authorize(chat, destination, sender); err != nil {
		return s.explain(err, service, username)
	}
	removed, err := s.commands.Unsubscribe(c, SubscriberId(destination.ID), service, username)
	if err != nil {
		return s.explain(err, service, username)
	}
	if !removed {
		return fmt.Sprintf(templates.NotSubscribed, username, service), nil
	}
	return fmt.Sprintf(templates.RemoveSuccess, username, service), nil
}

func (s *Service) ProcessCallback(context tele.Context) error {
	service, username, ok := parseRemoveCallback(context.Callback().Data)
	if !ok {
		return errors.New("couldn't get subscription data from remove callback")
	}
	c, cancel := ctx.WithTimeout(ctx.Background(), commandTimeout)
	defer cancel()
	reply, err := s.remove(c, context.Chat(), context.Chat(), context.Sender(), service, username)
	if err != nil {
		return err
	}
	return context.Send(reply)
}

func parseRemoveCallback(data string) (string, string, bool) {
	if !strings.HasPrefix(data, callbackPrefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(data, callbackPrefix), "|")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// OnMembershipChange forgets chats the bot was removed from.
func (s *Service) OnMembershipChange(context tele.Context) error {
	update := context.ChatMember()
	if update == nil || update.NewChatMember == nil || update.Chat == nil {
		return nil
	}
	return s.membershipChanged(update.Chat, update.NewChatMember.Role)
}

func (s *Service) membershipChanged(chat *tele.Chat, role tele.MemberStatus) error {
	if role != tele.Left && role != tele.Kicked {
		return nil
	}
	c, cancel := ctx.WithTimeout(ctx.Background(), commandTimeout)
	defer cancel()
	if err := s.commands.Forget(c, SubscriberId(chat.ID)); err != nil {
		return err
	}
	s.log.Info().Int64("chat", chat.ID).Msg("removed from chat, subscriptions dropped")
	return nil
}

// destination is the chat notifications go to: the command's own chat, or the
// channel named by the optional third argument.
func (s *Service) destination(chat *tele.Chat, args []string) (*tele.Chat, error) {
	if len(args) < 3 {
		return chat, nil
	}
	name := args[2]
	if _, err := strconv.ParseInt(name, 10, 64); err != nil && !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	channel, err := s.chats.ChatByUsername(name)
	if err != nil || channel == nil {
		return nil, errors.Wrapf(errChannelNotFound, "%v: %v", name, err)
	}
	return channel, nil
}

// authorize decides whether sender may manage the subscriptions of destination
// from chat. A private chat only manages itself; groups and channels need the
// sender to be one of their administrators.
func (s *Service) authorize(chat, destination *tele.Chat, sender *tele.User) error {
	if destination.Type == tele.ChatPrivate {
		if destination.ID != chat.ID {
			return errors.Wrapf(notifier.ErrInvalidTarget, "%v is somebody else's private chat", destination.ID)
		}
		return nil
	}
	if sender == nil {
		return errors.Wrap(notifier.ErrInvalidTarget, "anonymous sender")
	}
	admins, err := s.chats.AdminsOf(destination)
	if err != nil {
		return errors.Wrapf(err, "unable to get admins of %v", destination.ID)
	}
	for _, admin := range admins {
		if admin.User != nil && admin.User.ID == sender.ID {
			return nil
		}
	}
	return errors.Wrapf(notifier.ErrInvalidTarget, "%v is not an admin of %v", sender.ID, destination.ID)
}

// explain turns expected command errors into a reply. Anything else is returned
// and ends up in the bot's error handler.
func (s *Service) explain(err error, service, username string) (string, error) {
	switch {
	case errors.Is(err, notifier.ErrInvalidTarget):
		return templates.AdminsOnly, nil
	case errors.Is(err, streams.ErrUnknownService):
		return fmt.Sprintf(templates.UnknownService, service, strings.Join(s.commands.Services(), ", ")), nil
	case errors.Is(err, streams.ErrInvalidUsername):
		return fmt.Sprintf(templates.InvalidUsername, username), nil
	case errors.Is(err, streams.ErrStreamerNotFound):
		return fmt.Sprintf(templates.StreamerNotFound, username, service), nil
	case errors.Is(err, db.ErrAlreadySubscribed):
		return fmt.Sprintf(templates.AlreadySubscribed, strings.ToLower(username), strings.ToLower(service)), nil
	case errors.Is(err, streams.ErrFetchFailed), errors.Is(err, streams.ErrUnexpectedAPI):
		s.log.Warn().Err(err).Str("service", service).Msg("provider failed during command")
		return fmt.Sprintf(templates.ProviderUnavailable, service), nil
	}
	return "", err
}
