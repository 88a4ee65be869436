package app

import (
	"fmt"

	"restaurant_asset_tracker/internal/domain/device"
	"restaurant_asset_tracker/internal/domain/maintenance"
	"restaurant_asset_tracker/internal/domain/notify"
)

// BuildReminder renders the outbound reminder for a classified device.
func BuildReminder(snap device.Snapshot, c maintenance.Classification, notificationID string) notify.Message {
	name := snap.DeviceName
	if name == "" {
		name = snap.DeviceID
	}

	var title string
	if c.State == maintenance.StateOverdue {
		title = fmt.Sprintf("Maintenance overdue: %s", name)
	} else {
		title = fmt.Sprintf("Maintenance due soon: %s", name)
	}

	body := fmt.Sprintf("%s is %s (next service %s).", name, maintenance.Badge(c), c.NextDueAt.Format("2006-01-02"))
	if snap.RestaurantName != "" {
		body = fmt.Sprintf("%s at %s is %s (next service %s).", name, snap.RestaurantName, maintenance.Badge(c), c.NextDueAt.Format("2006-01-02"))
	}

	return notify.Message{
		DeviceID: snap.DeviceID,
		Title:    title,
		Body:     body,
		Payload: notify.Payload{
			NotificationID: notificationID,
			DeviceID:       snap.DeviceID,
			Kind:           c.State,
		},
	}
}
