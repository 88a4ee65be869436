// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"restaurant_asset_tracker/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// maxDueLines caps the /due reply so it fits into one Telegram message.
const maxDueLines = 40

// Overview is the read side the bot commands need.
type Overview interface {
	ListDue(ctx context.Context, now time.Time) ([]app.DeviceStatus, error)
	TriggerCycle(ctx context.Context, performingAdminID int64, now time.Time) (app.CycleReport, error)
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	overview Overview,
	adminTelegramID int64,
	baseLogger *logrus.Entry, // For contextual logging
) {
	cmdLogger := baseLogger.WithField("handler_group", "maintenance_commands")

	b.Handle("/start", func(c telebot.Context) error {
		cmdLogger.WithField("command", "/start").WithField("sender_id", c.Sender().ID).Info("Processing /start command")
		return c.Send("Hi! I post equipment maintenance reminders for this chat. Use /due to see what needs service and /help for all commands.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		logCtx := cmdLogger.WithField("command", "/help").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /help command")

		var helpText strings.Builder
		helpText.WriteString("Available commands:\n\n")
		helpText.WriteString("/due - list devices that are due soon or overdue\n")
		if c.Sender().ID == adminTelegramID {
			helpText.WriteString("/cycle - run a reminder cycle now\n")
		}
		helpText.WriteString("/help - show this message")
		return c.Send(helpText.String())
	})

	b.Handle("/due", func(c telebot.Context) error {
		logCtx := cmdLogger.WithField("command", "/due").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /due command")

		statuses, err := overview.ListDue(ctx, time.Now())
		if err != nil {
			logCtx.WithError(err).Error("Error listing due devices")
			return c.Send("Could not load devices right now. Please try again later.")
		}
		return c.Send(FormatDueList(statuses), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	})
}

// FormatDueList renders the /due reply as Telegram HTML.
func FormatDueList(statuses []app.DeviceStatus) string {
	if len(statuses) == 0 {
		return "✅ All devices are up to date."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%d device(s) need maintenance</b>\n", len(statuses))
	for i, st := range statuses {
		if i == maxDueLines {
			fmt.Fprintf(&sb, "…and %d more", len(statuses)-maxDueLines)
			break
		}
		name := st.DeviceName
		if name == "" {
			name = st.DeviceID
		}
		line := html.EscapeString(name)
		if st.RestaurantName != "" {
			line += " (" + html.EscapeString(st.RestaurantName) + ")"
		}
		fmt.Fprintf(&sb, "• %s: %s", line, html.EscapeString(st.Badge))
		if st.LastReminderAt != nil {
			fmt.Fprintf(&sb, " <i>(reminded %s)</i>", st.LastReminderAt.Format("2006-01-02"))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
