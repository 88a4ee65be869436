// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"html"

	"restaurant_asset_tracker/internal/domain/maintenance"
	"restaurant_asset_tracker/internal/domain/notify"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Sender defines an interface for sending messages via a Telegram bot.
type Sender interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements Sender using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified chat.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.Chat{ID: recipientChatID}
	_, err := tba.bot.Send(recipient, text, options)
	return err
}

// Dispatcher delivers maintenance reminders to a Telegram chat. It implements
// notify.Dispatcher and throttles sends to stay under the Bot API limits.
type Dispatcher struct {
	sender  Sender
	chatID  int64
	limiter *rate.Limiter
}

func NewDispatcher(sender Sender, chatID int64, ratePerSec float64) *Dispatcher {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		sender:  sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	text := FormatReminder(msg)
	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML, DisableWebPagePreview: true}

	// telebot has no context support; give up waiting when ctx ends.
	done := make(chan error, 1)
	go func() { done <- d.sender.SendMessage(d.chatID, text, opts) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send for device %s: %w", msg.DeviceID, err)
		}
		return nil
	case <-ctx.Done():
		// The send keeps running and may still be delivered. The caller records a
		// dispatch failure, so the next cycle can repeat this reminder.
		return fmt.Errorf("telegram send for device %s: %w", msg.DeviceID, ctx.Err())
	}
}

// FormatReminder renders a reminder as Telegram HTML.
func FormatReminder(msg notify.Message) string {
	icon := "🛠"
	if msg.Payload.Kind == maintenance.StateOverdue {
		icon = "⚠️"
	}
	return fmt.Sprintf("%s <b>%s</b>\n%s\n<code>%s · %s</code>",
		icon,
		html.EscapeString(msg.Title),
		html.EscapeString(msg.Body),
		html.EscapeString(msg.Payload.DeviceID),
		html.EscapeString(msg.Payload.NotificationID),
	)
}
