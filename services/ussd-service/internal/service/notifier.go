package service

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
)

// Notifier alerts administrators about events that need a human.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botmodels.Message, error)
}

type TelegramNotifier struct {
	sender  messageSender
	chatIDs []int64
	logger  *logrus.Logger
}

func NewTelegramNotifier(token string, chatIDs []int64, logger *logrus.Logger) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newTelegramNotifier(b, chatIDs, logger), nil
}

func newTelegramNotifier(sender messageSender, chatIDs []int64, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatIDs: chatIDs, logger: logger}
}

// Notify sends text to every admin chat. It reports the last failure but always tries all chats.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	var lastErr error
	for _, chatID := range n.chatIDs {
		_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		if err != nil {
			n.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to send admin alert")
			lastErr = fmt.Errorf("failed to send message: %w", err)
		}
	}
	return lastErr
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }
