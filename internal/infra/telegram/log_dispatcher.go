package telegram

import (
	"context"

	"restaurant_asset_tracker/internal/domain/notify"

	"github.com/sirupsen/logrus"
)

// LogDispatcher only logs reminders. Used when no bot token is configured.
type LogDispatcher struct {
	logger *logrus.Entry
}

func NewLogDispatcher(logger *logrus.Entry) *LogDispatcher {
	return &LogDispatcher{logger: logger.WithField("component", "log_dispatcher")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	d.logger.WithFields(logrus.Fields{
		"device_id":       msg.DeviceID,
		"kind":            msg.Payload.Kind,
		"notification_id": msg.Payload.NotificationID,
		"title":           msg.Title,
	}).Info(msg.Body)
	return ctx.Err()
}
