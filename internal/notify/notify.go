// Package notify delivers engine outbox messages to chat users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends each notification as a bot message to the user's chat.
type Telegram struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger
}

func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 15 * time.Second}, logger)
}

// NewTelegramWithEndpoint points the bot at a custom Bot API server.
func NewTelegramWithEndpoint(token, endpoint string, client tgbotapi.HTTPClient, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	logger.Info("telegram notifier ready", "bot", bot.Self.UserName)
	return &Telegram{bot: bot, log: logger}, nil
}

func (t *Telegram) Notify(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("send to %d: %w", userID, err)
	}
	return nil
}

// Log writes notifications to the logger. Used when no bot token is set.
type Log struct {
	log *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger}
}

func (l *Log) Notify(_ context.Context, userID int64, text string) error {
	l.log.Info("notification", "user_id", userID, "text", text)
	return nil
}
