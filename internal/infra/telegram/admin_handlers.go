package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_asset_tracker/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, overview Overview, baseLogger *logrus.Entry) {
	b.Handle("/cycle", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/cycle",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		report, err := overview.TriggerCycle(ctx, c.Sender().ID, time.Now())
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrNotAuthorized):
				logWithError.Warn("Unauthorized access attempt")
				return c.Send("Error: you are not allowed to run this command.")
			case errors.Is(err, app.ErrCycleInProgress):
				logWithError.Info("Cycle already running")
				return c.Send("A reminder cycle is already running. Try again in a moment.")
			default:
				logWithError.Error("Manual cycle failed")
				return c.Send(fmt.Sprintf("The cycle failed: %s", err.Error()))
			}
		}

		handlerLogger.WithField("dispatched", report.Dispatched).Info("Manual cycle completed")
		return c.Send(FormatCycleReport(report))
	})
}

// FormatCycleReport renders a cycle report for the admin.
func FormatCycleReport(r app.CycleReport) string {
	var sb strings.Builder
	sb.WriteString("Cycle finished")
	if r.Cancelled {
		sb.WriteString(" (cancelled)")
	}
	fmt.Fprintf(&sb, "\nseen: %d\nupcoming: %d\noverdue: %d\ndispatched: %d\nsuppressed: %d\nskipped: %d\nfailures: %d",
		r.Seen, r.Upcoming, r.Overdue, r.Dispatched, r.Suppressed, r.Skipped, len(r.Failures))
	for _, kind := range reportedFailureKinds {
		for _, f := range r.FailuresOf(kind) {
			fmt.Fprintf(&sb, "\n- %s [%s]: %s", f.DeviceID, f.Kind, f.Message)
		}
	}
	return sb.String()
}

// reportedFailureKinds orders failures in the admin report, whole-device
// problems first.
var reportedFailureKinds = []app.FailureKind{
	app.FailureFetch,
	app.FailurePrecondition,
	app.FailureLedger,
	app.FailureDispatch,
}
