// Package memory holds an in-process reminder ledger store, used when no
// database backs the ledger and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"restaurant_asset_tracker/internal/domain/reminder"
)

type ReminderRepository struct {
	mu      sync.RWMutex
	entries map[string]reminder.Entry
	clock   func() time.Time // stamps UpdatedAt with the write time
}

func NewReminderRepository() *ReminderRepository {
	return &ReminderRepository{entries: make(map[string]reminder.Entry), clock: time.Now}
}

func (r *ReminderRepository) Get(ctx context.Context, deviceID string) (*reminder.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[deviceID]
	if !ok {
		return nil, reminder.ErrEntryNotFound
	}
	return &e, nil
}

func (r *ReminderRepository) Upsert(ctx context.Context, entry *reminder.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	e.UpdatedAt = r.clock()
	r.entries[entry.DeviceID] = e
	entry.UpdatedAt = e.UpdatedAt
	return nil
}

func (r *ReminderRepository) List(ctx context.Context) ([]*reminder.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*reminder.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		e := e
		result = append(result, &e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeviceID < result[j].DeviceID })
	return result, nil
}
