package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier broadcasts alerts to a fixed list of chats.
type TelegramNotifier struct {
	bot     messageSender
	chatIDs []int64
	logger  *zap.Logger
}

// NewTelegramNotifier authenticates the bot token.
func NewTelegramNotifier(token string, chatIDs []int64, logger *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return newTelegramNotifier(bot, chatIDs, logger), nil
}

func newTelegramNotifier(bot messageSender, chatIDs []int64, logger *zap.Logger) *TelegramNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

// Notify sends message to every configured chat. Delivery continues past individual failures.
func (n *TelegramNotifier) Notify(ctx context.Context, message string) error {
	if n == nil || len(n.chatIDs) == 0 {
		return nil
	}
	var failed int
	var lastErr error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, message)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			failed++
			lastErr = err
			n.logger.Warn("telegram alert failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("telegram alert failed for %d of %d chats: %w", failed, len(n.chatIDs), lastErr)
	}
	return nil
}
