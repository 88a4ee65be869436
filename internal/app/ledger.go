// internal/app/ledger.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restaurant_asset_tracker/internal/domain/maintenance"
	"restaurant_asset_tracker/internal/domain/reminder"
)

// LedgerPolicy holds the cool-down per reminder kind.
type LedgerPolicy struct {
	UpcomingCooldown time.Duration
	OverdueCooldown  time.Duration
}

// DefaultLedgerPolicy returns the standard cool-downs.
func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		UpcomingCooldown: reminder.UpcomingCooldown,
		OverdueCooldown:  reminder.OverdueCooldown,
	}
}

// Cooldown returns the re-arm window for a reminder kind.
func (p LedgerPolicy) Cooldown(kind maintenance.State) time.Duration {
	if kind == maintenance.StateOverdue {
		return p.OverdueCooldown
	}
	return p.UpcomingCooldown
}

// Ledger decides whether a reminder may be sent for a device and records the
// reminders that were sent.
type Ledger struct {
	repo   reminder.Repository
	policy LedgerPolicy
	locks  sync.Map // deviceID -> *sync.Mutex
}

func NewLedger(repo reminder.Repository, policy LedgerPolicy) *Ledger {
	return &Ledger{repo: repo, policy: policy}
}

// Lock serializes ledger access for one device. Callers hold it across
// ShouldDispatch, the dispatch itself and RecordDispatch.
func (l *Ledger) Lock(deviceID string) (unlock func()) {
	v, _ := l.locks.LoadOrStore(deviceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ShouldDispatch reports whether a reminder of the given kind is due for the device.
func (l *Ledger) ShouldDispatch(ctx context.Context, deviceID string, state maintenance.State, now time.Time) (bool, error) {
	if !state.IsActionable() {
		return false, nil
	}

	entry, err := l.repo.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, reminder.ErrEntryNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read ledger entry for device %s: %w", deviceID, err)
	}

	// Kinds have independent cool-downs; the entry only remembers the latest one.
	if entry.LastReminderKind != state {
		return true, nil
	}
	return now.Sub(entry.LastReminderSentAt) >= l.policy.Cooldown(state), nil
}

// RecordDispatch stores that a reminder of the given kind was sent at now.
func (l *Ledger) RecordDispatch(ctx context.Context, deviceID string, state maintenance.State, now time.Time) error {
	if !state.IsActionable() {
		return fmt.Errorf("cannot record reminder of kind %s for device %s", state, deviceID)
	}
	entry := &reminder.Entry{
		DeviceID:           deviceID,
		LastReminderSentAt: now,
		LastReminderKind:   state,
	}
	if err := l.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to record reminder for device %s: %w", deviceID, err)
	}
	return nil
}

// History returns the latest ledger entry of every device that was reminded,
// keyed by device ID.
func (l *Ledger) History(ctx context.Context) (map[string]reminder.Entry, error) {
	entries, err := l.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder ledger: %w", err)
	}
	history := make(map[string]reminder.Entry, len(entries))
	for _, e := range entries {
		history[e.DeviceID] = *e
	}
	return history, nil
}
