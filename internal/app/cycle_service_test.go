package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"restaurant_asset_tracker/internal/domain/device"
	"restaurant_asset_tracker/internal/domain/maintenance"
	"restaurant_asset_tracker/internal/domain/notify"
	"restaurant_asset_tracker/internal/domain/reminder"
	"restaurant_asset_tracker/internal/infra/memory"

	"github.com/sirupsen/logrus"
)

var cycleNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func servicedAt(t time.Time) *time.Time { return &t }

type fakeProvider struct {
	listing device.Listing
	err     error
}

func (p *fakeProvider) ListMaintainableDevices(ctx context.Context, now time.Time) (device.Listing, error) {
	return p.listing, p.err
}

type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []notify.Message
	failFor map[string]bool
	entered chan struct{} // signalled on each Dispatch call when non-nil
	release chan struct{} // Dispatch waits on it when non-nil
	block   bool          // wait for ctx to finish
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	if d.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if d.failFor[msg.DeviceID] {
		return errors.New("telegram rejected the message")
	}
	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	return nil
}

func (d *fakeDispatcher) sentTo(deviceID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.sent {
		if m.DeviceID == deviceID {
			n++
		}
	}
	return n
}

func newTestService(p device.Provider, d notify.Dispatcher, repo reminder.Repository) *CycleService {
	return NewCycleService(p, NewLedger(repo, DefaultLedgerPolicy()), d, quietLogger(), CycleOptions{
		Workers:         4,
		DispatchTimeout: 50 * time.Millisecond,
	})
}

func snapshot(id string, last *time.Time, interval int) device.Snapshot {
	return device.Snapshot{
		DeviceID:          id,
		DeviceName:        "Device " + id,
		RestaurantName:    "Harbor Grill",
		LastMaintenanceAt: last,
		IntervalDays:      interval,
		HasInterval:       true,
	}
}

func TestRunCycle_ClassifiesAndDispatches(t *testing.T) {
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("fresh", servicedAt(cycleNow.AddDate(0, 0, -1)), 90),
		snapshot("soon", servicedAt(cycleNow.AddDate(0, 0, -25)), 30),
		snapshot("late", servicedAt(cycleNow.AddDate(0, 0, -40)), 30),
		snapshot("new", nil, 30),
		{DeviceID: "no-interval", HasInterval: false},
	}}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(provider, dispatcher, memory.NewReminderRepository())

	report, err := svc.RunCycle(context.Background(), cycleNow)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if report.Seen != 5 {
		t.Errorf("Expected 5 seen, got %d", report.Seen)
	}
	if report.Upcoming != 2 {
		t.Errorf("Expected 2 upcoming, got %d", report.Upcoming)
	}
	if report.Overdue != 1 {
		t.Errorf("Expected 1 overdue, got %d", report.Overdue)
	}
	if report.Dispatched != 3 {
		t.Errorf("Expected 3 dispatched, got %d", report.Dispatched)
	}
	if report.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", report.Skipped)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Expected no failures, got %+v", report.Failures)
	}
	if dispatcher.sentTo("fresh") != 0 {
		t.Error("Up-to-date device must not be notified")
	}

	for _, m := range dispatcher.sent {
		if m.DeviceID == "late" {
			if m.Payload.Kind != maintenance.StateOverdue || m.Payload.DeviceID != "late" {
				t.Errorf("Unexpected payload %+v", m.Payload)
			}
			if m.Payload.NotificationID == "" {
				t.Error("Expected a notification id in the payload")
			}
		}
	}
}

func TestRunCycle_OverdueDedupAndRearm(t *testing.T) {
	testCases := []struct {
		name      string
		nextCycle time.Duration
		wantSent  int
	}{
		{"second cycle within cooldown", 2 * 24 * time.Hour, 1},
		{"second cycle same day", time.Hour, 1},
		{"second cycle at cooldown", 3 * 24 * time.Hour, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
				snapshot("fryer", servicedAt(cycleNow.AddDate(0, 0, -45)), 30),
			}}}
			dispatcher := &fakeDispatcher{}
			svc := newTestService(provider, dispatcher, memory.NewReminderRepository())

			if _, err := svc.RunCycle(context.Background(), cycleNow); err != nil {
				t.Fatalf("First cycle failed: %v", err)
			}
			report, err := svc.RunCycle(context.Background(), cycleNow.Add(tc.nextCycle))
			if err != nil {
				t.Fatalf("Second cycle failed: %v", err)
			}

			if got := dispatcher.sentTo("fryer"); got != tc.wantSent {
				t.Errorf("Expected %d dispatches, got %d", tc.wantSent, got)
			}
			if tc.wantSent == 1 && report.Suppressed != 1 {
				t.Errorf("Expected the second reminder to be suppressed, got %+v", report)
			}
		})
	}
}

func TestRunCycle_UpcomingThenOverdueDispatchesBoth(t *testing.T) {
	last := cycleNow.AddDate(0, 0, -20) // due in 10 days
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("ice-machine", &last, 30),
	}}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(provider, dispatcher, memory.NewReminderRepository())

	first, _ := svc.RunCycle(context.Background(), cycleNow)
	if first.Upcoming != 1 || first.Dispatched != 1 {
		t.Fatalf("Expected an upcoming dispatch, got %+v", first)
	}

	// Six days later it is still upcoming and inside the 7 day cooldown.
	mid, _ := svc.RunCycle(context.Background(), cycleNow.AddDate(0, 0, 6))
	if mid.Suppressed != 1 {
		t.Fatalf("Expected the upcoming reminder to be suppressed, got %+v", mid)
	}

	// Eleven days later it is overdue, still inside the upcoming cooldown.
	late, _ := svc.RunCycle(context.Background(), cycleNow.AddDate(0, 0, 11))
	if late.Overdue != 1 || late.Dispatched != 1 {
		t.Fatalf("Expected an immediate overdue dispatch, got %+v", late)
	}
	if got := dispatcher.sentTo("ice-machine"); got != 2 {
		t.Errorf("Expected 2 dispatches in total, got %d", got)
	}
}

func TestRunCycle_FetchFailureIsIsolated(t *testing.T) {
	provider := &fakeProvider{listing: device.Listing{
		Snapshots: []device.Snapshot{snapshot("B", servicedAt(cycleNow.AddDate(0, 0, -31)), 30)},
		Failures:  []device.FetchFailure{{DeviceID: "A", Err: errors.New("malformed row")}},
	}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(provider, dispatcher, memory.NewReminderRepository())

	report, err := svc.RunCycle(context.Background(), cycleNow)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if dispatcher.sentTo("B") != 1 {
		t.Error("Expected device B to be notified despite A's fetch failure")
	}
	fetchFailures := report.FailuresOf(FailureFetch)
	if len(fetchFailures) != 1 || fetchFailures[0].DeviceID != "A" {
		t.Fatalf("Expected one fetch failure for A, got %+v", report.Failures)
	}
	if !errors.Is(fetchFailures[0].Err, ErrFetchFailure) {
		t.Errorf("Expected ErrFetchFailure, got %v", fetchFailures[0].Err)
	}
}

func TestRunCycle_DispatchFailureLeavesLedgerUntouched(t *testing.T) {
	repo := memory.NewReminderRepository()
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("walk-in", servicedAt(cycleNow.AddDate(0, 0, -31)), 30),
		snapshot("mixer", servicedAt(cycleNow.AddDate(0, 0, -31)), 30),
	}}}
	dispatcher := &fakeDispatcher{failFor: map[string]bool{"walk-in": true}}
	svc := newTestService(provider, dispatcher, repo)

	report, err := svc.RunCycle(context.Background(), cycleNow)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	failures := report.FailuresOf(FailureDispatch)
	if len(failures) != 1 || failures[0].DeviceID != "walk-in" {
		t.Fatalf("Expected one dispatch failure for walk-in, got %+v", report.Failures)
	}
	if !errors.Is(failures[0].Err, ErrDispatchFailure) {
		t.Errorf("Expected ErrDispatchFailure, got %v", failures[0].Err)
	}
	if _, err := repo.Get(context.Background(), "walk-in"); !errors.Is(err, reminder.ErrEntryNotFound) {
		t.Errorf("Expected no ledger entry after failed dispatch, got %v", err)
	}
	if report.Dispatched != 1 {
		t.Errorf("Expected the other device to be dispatched, got %d", report.Dispatched)
	}

	// Delivery recovers; the next cycle retries as if nothing happened.
	dispatcher.failFor = nil
	next, err := svc.RunCycle(context.Background(), cycleNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if next.Dispatched != 1 || dispatcher.sentTo("walk-in") != 1 {
		t.Errorf("Expected walk-in to be retried and sent, got %+v", next)
	}
	if next.Suppressed != 1 {
		t.Errorf("Expected mixer to be suppressed, got %d", next.Suppressed)
	}
}

func TestRunCycle_DispatchTimeoutIsPerDeviceFailure(t *testing.T) {
	repo := memory.NewReminderRepository()
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("router", servicedAt(cycleNow.AddDate(0, 0, -400)), 365),
	}}}
	svc := newTestService(provider, &fakeDispatcher{block: true}, repo)

	report, err := svc.RunCycle(context.Background(), cycleNow)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	failures := report.FailuresOf(FailureDispatch)
	if len(failures) != 1 {
		t.Fatalf("Expected one dispatch failure, got %+v", report.Failures)
	}
	if !errors.Is(failures[0].Err, context.DeadlineExceeded) {
		t.Errorf("Expected a deadline error, got %v", failures[0].Err)
	}
	if entries, _ := repo.List(context.Background()); len(entries) != 0 {
		t.Errorf("Expected an empty ledger, got %d entries", len(entries))
	}
}

func TestRunCycle_InvalidIntervalIsRecorded(t *testing.T) {
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("broken", servicedAt(cycleNow), 0),
		snapshot("ok", servicedAt(cycleNow.AddDate(0, 0, -31)), 30),
	}}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(provider, dispatcher, memory.NewReminderRepository())

	report, err := svc.RunCycle(context.Background(), cycleNow)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	failures := report.FailuresOf(FailurePrecondition)
	if len(failures) != 1 || !errors.Is(failures[0].Err, maintenance.ErrInvalidInterval) {
		t.Fatalf("Expected one precondition failure, got %+v", report.Failures)
	}
	if dispatcher.sentTo("ok") != 1 {
		t.Error("Expected the valid device to be notified")
	}
}

func TestRunCycle_ListFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	svc := newTestService(provider, &fakeDispatcher{}, memory.NewReminderRepository())

	report, err := svc.RunCycle(context.Background(), cycleNow)
	if !errors.Is(err, ErrFetchFailure) {
		t.Fatalf("Expected ErrFetchFailure, got %v", err)
	}
	if report.FetchError == "" {
		t.Error("Expected the fetch error in the report")
	}

	// the service is usable again afterwards
	provider.err = nil
	if _, err := svc.RunCycle(context.Background(), cycleNow); err != nil {
		t.Errorf("Expected a later cycle to run, got %v", err)
	}
}

func TestRunCycle_SingleFlight(t *testing.T) {
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("pos", servicedAt(cycleNow.AddDate(0, 0, -31)), 30),
	}}}
	dispatcher := &fakeDispatcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewCycleService(provider, NewLedger(memory.NewReminderRepository(), DefaultLedgerPolicy()), dispatcher, quietLogger(), CycleOptions{})

	done := make(chan CycleReport)
	go func() {
		report, _ := svc.RunCycle(context.Background(), cycleNow)
		done <- report
	}()

	<-dispatcher.entered
	if _, err := svc.RunCycle(context.Background(), cycleNow); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("Expected ErrCycleInProgress for an overlapping cycle, got %v", err)
	}
	close(dispatcher.release)

	report := <-done
	if report.Dispatched != 1 {
		t.Errorf("Expected the first cycle to dispatch once, got %d", report.Dispatched)
	}
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	provider := &fakeProvider{listing: device.Listing{Snapshots: []device.Snapshot{
		snapshot("pos", servicedAt(cycleNow.AddDate(0, 0, -31)), 30),
	}}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(provider, dispatcher, memory.NewReminderRepository())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.RunCycle(ctx, cycleNow)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if !report.Cancelled {
		t.Error("Expected the report to be marked cancelled")
	}
	if report.Dispatched != 0 || len(dispatcher.sent) != 0 {
		t.Errorf("Expected nothing dispatched, got %d", report.Dispatched)
	}
}

func TestBuildReminder(t *testing.T) {
	snap := snapshot("hood-3", servicedAt(cycleNow.AddDate(0, 0, -33)), 30)
	c := maintenance.Classify(snap.LastMaintenanceAt, snap.IntervalDays, cycleNow)

	msg := BuildReminder(snap, c, "n-1")
	if msg.Title != "Maintenance overdue: Device hood-3" {
		t.Errorf("Unexpected title %q", msg.Title)
	}
	want := "Device hood-3 at Harbor Grill is overdue by 3 days (next service 2025-05-29)."
	if msg.Body != want {
		t.Errorf("Expected body %q, got %q", want, msg.Body)
	}
	if msg.Payload.NotificationID != "n-1" || msg.Payload.Kind != maintenance.StateOverdue {
		t.Errorf("Unexpected payload %+v", msg.Payload)
	}
}
