package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/infra/metrics"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ adapter.PaymentNotifier = (*TelegramNotifier)(nil)

// TelegramNotifier posts a short receipt line to operator chats.
type TelegramNotifier struct {
	bot     messageSender
	chatIDs []int64
}

func NewTelegramNotifier(token string, chatIDs []int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("no telegram chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs}, nil
}

func (n *TelegramNotifier) BroadcastPaymentUpdate(ctx context.Context, s model.PaymentSnapshot) error {
	text := formatSnapshot(s)
	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := n.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	if len(errs) > 0 {
		metrics.IncNotification("telegram", "error")
		return errors.Join(errs...)
	}
	metrics.IncNotification("telegram", "sent")
	return nil
}

func formatSnapshot(s model.PaymentSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment %s\n", s.Status)
	fmt.Fprintf(&b, "Amount: KES %d\n", s.Amount)
	fmt.Fprintf(&b, "Phone: %s\n", s.PhoneNumber)
	if s.ReceiptNumber != nil {
		fmt.Fprintf(&b, "Receipt: %s\n", *s.ReceiptNumber)
	}
	fmt.Fprintf(&b, "ID: %s", s.ID)
	return b.String()
}
