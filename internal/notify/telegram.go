package notify

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
)

// sendTimeout bounds a single Telegram delivery.
const sendTimeout = 10 * time.Second

// messageSender is the part of the Telegram bot API the notifier uses.
type messageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (any, error)
}

type botSender struct {
	bot *tgbot.Bot
}

func (s botSender) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (any, error) {
	return s.bot.SendMessage(ctx, params)
}

// Telegram forwards toasts to a Telegram chat.
type Telegram struct {
	sender messageSender
	chatID int64
	log    logrus.FieldLogger
}

// NewTelegram creates a notifier posting to chatID with the given bot token.
func NewTelegram(token string, chatID int64, logger logrus.FieldLogger) (*Telegram, error) {
	log := logger.WithField("component", "telegram_notifier")

	// WithSkipGetMe avoids a network round trip at construction.
	b, err := tgbot.New(token, tgbot.WithSkipGetMe())
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.WithField("chat_id", chatID).Info("Telegram notifier initialized")
	return &Telegram{sender: botSender{bot: b}, chatID: chatID, log: log}, nil
}

// Notify sends the toast in the background; delivery failures are logged.
func (t *Telegram) Notify(kind Kind, message string) {
	text := FormatMessage(kind, message)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		t.send(ctx, text)
	}()
}

func (t *Telegram) send(ctx context.Context, text string) {
	_, err := t.sender.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	})
	if err != nil {
		t.log.WithError(err).Error("Failed to send Telegram notification")
	}
}

// FormatMessage renders a toast as chat text.
func FormatMessage(kind Kind, message string) string {
	switch kind {
	case Success:
		return "✅ " + message
	case Error:
		return "⚠️ " + message
	default:
		return message
	}
}
