package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxMessageLength is Telegram's limit for message text, in characters.
const maxMessageLength = 4096

const defaultSendRate = 1.0

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Publisher posts and edits text messages in Telegram chats. Delivery is
// best effort: failed sends are returned to the caller and not retried.
type Publisher struct {
	tg      telegramClient
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// New connects to the Bot API with token.
func New(token string, debug bool, sendRate float64, logger *zerolog.Logger) (*Publisher, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newPublisher(&realTelegramClient{api: api}, sendRate, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, sendRate float64, logger *zerolog.Logger) (*Publisher, error) {
	return newPublisher(tg, sendRate, logger)
}

func newPublisher(tg telegramClient, sendRate float64, logger *zerolog.Logger) (*Publisher, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Publisher{
		tg:      tg,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
		logger:  logger,
	}, nil
}

// Username returns the bot account name.
func (p *Publisher) Username() string {
	return p.tg.SelfUser().UserName
}

// PostMessage sends text to chatID and returns the new message id.
func (p *Publisher) PostMessage(ctx context.Context, chatID int64, text string) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, truncate(text))
	msg.DisableWebPagePreview = true

	sent, err := p.tg.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("post to %d: %w", chatID, err)
	}
	zerolog.Ctx(ctx).Debug().Int64("chat_id", chatID).Int("message_id", sent.MessageID).Msg("message posted")
	return sent.MessageID, nil
}

// EditMessage replaces the text of an existing message. Editing to the
// current text is not an error.
func (p *Publisher) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, truncate(text))
	edit.DisableWebPagePreview = true

	if _, err := p.tg.Send(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("edit %d/%d: %w", chatID, messageID, err)
	}
	zerolog.Ctx(ctx).Debug().Int64("chat_id", chatID).Int("message_id", messageID).Msg("message edited")
	return nil
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, "message is not modified")
	}
	return strings.Contains(err.Error(), "message is not modified")
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxMessageLength-1]) + "…"
}
