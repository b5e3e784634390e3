package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ethwhale/whalesignal/internal/logging"
)

// TelegramSender implements Sender by pushing a single chat message per
// call (spec §6: "a single send(text) surface"). It never polls for
// updates or registers bot commands — those are explicitly out of scope
// (spec §1 non-goals: "Telegram delivery... are external collaborators").
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logging.Logger
}

// NewTelegramSender builds a TelegramSender from a bot token. The
// returned sender owns no background goroutine: it only ever calls
// Send on demand.
func NewTelegramSender(token string, chatID int64, log *logging.Logger) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: build telegram client: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID, log: log.Named("notify.telegram")}, nil
}

// Send delivers text as one chat message. Delivery is fire-and-forget:
// the caller logs and drops a failure rather than retrying synchronously
// (spec §4.10).
func (s *TelegramSender) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}
