package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"restaurant_asset_tracker/internal/domain/device"
	"restaurant_asset_tracker/internal/domain/maintenance"
)

// Custom application-level errors for the overview service
var ErrNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// DeviceStatus is a classified device as shown to people.
type DeviceStatus struct {
	DeviceID       string            `json:"device_id"`
	DeviceName     string            `json:"device_name"`
	RestaurantName string            `json:"restaurant_name"`
	State          maintenance.State `json:"state"`
	DaysOffset     int               `json:"days_offset"`
	NextDueAt      time.Time         `json:"next_due_at"`
	Badge          string            `json:"badge"`

	LastReminderAt   *time.Time        `json:"last_reminder_at,omitempty"`
	LastReminderKind maintenance.State `json:"last_reminder_kind,omitempty"`
}

// OverviewService answers read-only questions about maintenance state using
// the same classifier as the notifier.
type OverviewService struct {
	provider        device.Provider
	ledger          *Ledger
	cycles          CycleRunner
	adminTelegramID int64
}

func NewOverviewService(provider device.Provider, ledger *Ledger, cycles CycleRunner, adminID int64) *OverviewService {
	return &OverviewService{
		provider:        provider,
		ledger:          ledger,
		cycles:          cycles,
		adminTelegramID: adminID,
	}
}

// ListDue returns every device that is upcoming or overdue at now, most
// urgent first, with the last reminder sent for it. Devices without an
// interval or with an invalid one are left out.
func (s *OverviewService) ListDue(ctx context.Context, now time.Time) ([]DeviceStatus, error) {
	listing, err := s.provider.ListMaintainableDevices(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	history, err := s.ledger.History(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]DeviceStatus, 0)
	for _, snap := range listing.Snapshots {
		if !snap.HasInterval || maintenance.CheckInterval(snap.IntervalDays) != nil {
			continue
		}
		c := maintenance.Classify(snap.LastMaintenanceAt, snap.IntervalDays, now)
		if !c.State.IsActionable() {
			continue
		}
		st := DeviceStatus{
			DeviceID:       snap.DeviceID,
			DeviceName:     snap.DeviceName,
			RestaurantName: snap.RestaurantName,
			State:          c.State,
			DaysOffset:     c.DaysOffset,
			NextDueAt:      c.NextDueAt,
			Badge:          maintenance.Badge(c),
		}
		if e, ok := history[snap.DeviceID]; ok {
			sentAt := e.LastReminderSentAt
			st.LastReminderAt = &sentAt
			st.LastReminderKind = e.LastReminderKind
		}
		statuses = append(statuses, st)
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		if statuses[i].DaysOffset != statuses[j].DaysOffset {
			return statuses[i].DaysOffset < statuses[j].DaysOffset
		}
		return statuses[i].DeviceID < statuses[j].DeviceID
	})
	return statuses, nil
}

// TriggerCycle runs a cycle on behalf of an admin.
func (s *OverviewService) TriggerCycle(ctx context.Context, performingAdminID int64, now time.Time) (CycleReport, error) {
	if performingAdminID != s.adminTelegramID {
		return CycleReport{}, ErrNotAuthorized
	}
	return s.cycles.RunCycle(ctx, now)
}
