package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/iyhunko/price-tracker/internal/config"
)

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("telegram is not configured")

// BotAPI is the subset of the Telegram bot client used by Notifier.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers alerts and report files to a single Telegram chat.
type Notifier struct {
	bot    BotAPI
	chatID int64
}

// NewNotifier connects to the Telegram bot API with the configured token.
func NewNotifier(conf config.TelegramConfig) (*Notifier, error) {
	if !conf.Enabled() {
		return nil, ErrNotConfigured
	}

	bot, err := tgbotapi.NewBotAPI(conf.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	slog.Info("telegram bot authorized", slog.String("username", bot.Self.UserName))

	return NewNotifierWithBot(bot, conf.ChatID), nil
}

// NewNotifierWithBot creates a Notifier on top of an existing bot client.
func NewNotifierWithBot(bot BotAPI, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// SendMessage sends an HTML formatted text message.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// SendDocument uploads data as a file named name.
func (n *Notifier) SendDocument(ctx context.Context, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(n.chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption

	if _, err := n.bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send telegram document %s: %w", name, err)
	}
	return nil
}
