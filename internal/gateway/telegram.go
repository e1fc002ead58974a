// Package gateway adapts the Telegram Bot API to the narrow surface the
// engine needs: explicit-offset long polling, message sending, and webhook
// management. Library update objects are converted into core updates at this
// boundary so the core never touches platform types.
package gateway

import (
	"fmt"

	"github.com/dvidales/codbot/internal/core"
	"github.com/dvidales/codbot/internal/logger"
	"github.com/dvidales/codbot/pkg/constants"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Telegram implements core.Gateway over the Telegram Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// New authenticates against the Telegram Bot API and returns the gateway.
func New(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("gateway: initialize telegram bot: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"bot_username": bot.Self.UserName,
		"bot_id":       bot.Self.ID,
		"token":        maskSecret(token),
	}).Info("telegram-bot-initialized")

	return &Telegram{bot: bot}, nil
}

// FetchUpdates long-polls getUpdates starting at offset. The engine owns the
// offset cursor; the gateway never advances it.
func (t *Telegram) FetchUpdates(offset, timeoutSeconds int) ([]core.Update, error) {
	updates, err := t.bot.GetUpdates(tgbotapi.UpdateConfig{
		Offset:  offset,
		Timeout: timeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: get updates: %w", err)
	}

	converted := make([]core.Update, 0, len(updates))
	for _, u := range updates {
		cu, ok := convertUpdate(u)
		if !ok {
			continue
		}
		converted = append(converted, cu)
	}
	return converted, nil
}

// convertUpdate maps a library update onto a core update. An edited message
// stands in when no new message is present; updates carrying neither are
// dropped.
func convertUpdate(u tgbotapi.Update) (core.Update, bool) {
	message := u.Message
	if message == nil {
		message = u.EditedMessage
	}
	if message == nil || message.Chat == nil {
		return core.Update{}, false
	}

	cu := core.Update{
		ID:     u.UpdateID,
		ChatID: message.Chat.ID,
		Text:   message.Text,
	}
	if message.From != nil {
		cu.UserID = message.From.ID
	}
	for _, entity := range message.Entities {
		cu.Entities = append(cu.Entities, core.Entity{
			Type:   entity.Type,
			Offset: entity.Offset,
			Length: entity.Length,
		})
	}
	return cu, true
}

// SendMessage sends a text message, capped at the Telegram message limit.
func (t *Telegram) SendMessage(chatID int64, text string) error {
	if len(text) > constants.MaxTelegramMessageLength {
		logger.WithFields(logrus.Fields{
			"chat_id":         chatID,
			"original_length": len(text),
		}).Info("truncating-message-for-telegram-limit")
		text = text[:constants.MaxTelegramMessageLength]
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("gateway: send message to chat %d: %w", chatID, err)
	}
	return nil
}

// WebhookURL returns the currently registered webhook URL, empty when none.
func (t *Telegram) WebhookURL() (string, error) {
	info, err := t.bot.GetWebhookInfo()
	if err != nil {
		return "", fmt.Errorf("gateway: get webhook info: %w", err)
	}
	return info.URL, nil
}

// SetWebhook registers a webhook URL for update delivery.
func (t *Telegram) SetWebhook(url string) error {
	webhook, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("gateway: build webhook config: %w", err)
	}
	if _, err := t.bot.Request(webhook); err != nil {
		return fmt.Errorf("gateway: set webhook: %w", err)
	}
	return nil
}

// maskSecret masks sensitive information for logging
func maskSecret(s string) string {
	if len(s) <= constants.MinSecretLengthForMasking {
		return "***"
	}
	return s[:constants.SecretMaskPrefixLength] + "***" + s[len(s)-constants.SecretMaskSuffixLength:]
}
