// internal/app/cycle_service.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"restaurant_asset_tracker/internal/domain/device"
	"restaurant_asset_tracker/internal/domain/maintenance"
	"restaurant_asset_tracker/internal/domain/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCycleWorkers    = 8
	defaultFetchTimeout    = 30 * time.Second
	defaultDispatchTimeout = 10 * time.Second
)

// CycleRunner runs one maintenance reminder cycle.
type CycleRunner interface {
	// RunCycle classifies every maintainable device at now and dispatches the
	// reminders the ledger allows. Per-device failures are recorded in the
	// report; only fetch failures and overlapping calls return an error.
	RunCycle(ctx context.Context, now time.Time) (CycleReport, error)
}

// CycleOptions bounds the work done by a cycle.
type CycleOptions struct {
	Workers         int
	FetchTimeout    time.Duration
	DispatchTimeout time.Duration
}

func (o CycleOptions) withDefaults() CycleOptions {
	if o.Workers <= 0 {
		o.Workers = defaultCycleWorkers
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = defaultFetchTimeout
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = defaultDispatchTimeout
	}
	return o
}

// CycleService implements CycleRunner.
type CycleService struct {
	provider   device.Provider
	ledger     *Ledger
	dispatcher notify.Dispatcher
	logger     *logrus.Entry
	opts       CycleOptions
	newID      func() string

	running sync.Mutex // held for the duration of a cycle
}

func NewCycleService(
	provider device.Provider,
	ledger *Ledger,
	dispatcher notify.Dispatcher,
	logger *logrus.Entry,
	opts CycleOptions,
) *CycleService {
	return &CycleService{
		provider:   provider,
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     logger.WithField("component", "cycle_service"),
		opts:       opts.withDefaults(),
		newID:      uuid.NewString,
	}
}

func (s *CycleService) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	if !s.running.TryLock() {
		s.logger.Warn("Cycle requested while another cycle is running; skipping")
		return CycleReport{}, ErrCycleInProgress
	}
	defer s.running.Unlock()

	report := CycleReport{EvaluatedAt: now, StartedAt: time.Now()}
	logCtx := s.logger.WithField("evaluated_at", now.Format(time.RFC3339))
	logCtx.Info("Starting maintenance cycle")

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	listing, err := s.provider.ListMaintainableDevices(fetchCtx, now)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetchFailure, err)
		report.FetchError = err.Error()
		report.Cancelled = ctx.Err() != nil
		report.FinishedAt = time.Now()
		logCtx.WithError(err).Error("Could not list maintainable devices")
		return report, err
	}

	report.Seen = len(listing.Snapshots) + len(listing.Failures)
	for _, f := range listing.Failures {
		failure := newFailure(f.DeviceID, FailureFetch, fmt.Errorf("%w: %w", ErrFetchFailure, f.Err))
		report.Failures = append(report.Failures, failure)
		logCtx.WithField("device_id", f.DeviceID).WithError(f.Err).Warn("Skipping device with unreadable snapshot")
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.opts.Workers)

	for _, snap := range listing.Snapshots {
		if ctx.Err() != nil {
			break
		}
		snap := snap
		g.Go(func() error {
			outcome := s.processDevice(ctx, snap, now)
			mu.Lock()
			report.apply(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in the report

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now()
	report.sortFailures()

	logCtx.WithFields(logrus.Fields{
		"seen":       report.Seen,
		"upcoming":   report.Upcoming,
		"overdue":    report.Overdue,
		"dispatched": report.Dispatched,
		"suppressed": report.Suppressed,
		"skipped":    report.Skipped,
		"failures":   len(report.Failures),
		"cancelled":  report.Cancelled,
		"duration":   report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Maintenance cycle finished")

	return report, nil
}

func (s *CycleService) processDevice(ctx context.Context, snap device.Snapshot, now time.Time) deviceOutcome {
	logCtx := s.logger.WithField("device_id", snap.DeviceID)

	if !snap.HasInterval {
		logCtx.Debug("Device category has no maintenance interval; skipping")
		return deviceOutcome{skipped: true}
	}
	if err := maintenance.CheckInterval(snap.IntervalDays); err != nil {
		logCtx.WithError(err).Error("Invalid maintenance interval reached the scheduler")
		f := newFailure(snap.DeviceID, FailurePrecondition, err)
		return deviceOutcome{failure: &f}
	}

	c := maintenance.Classify(snap.LastMaintenanceAt, snap.IntervalDays, now)
	out := deviceOutcome{state: c.State}
	if !c.State.IsActionable() {
		return out
	}
	logCtx = logCtx.WithFields(logrus.Fields{"state": c.State, "days_offset": c.DaysOffset})

	unlock := s.ledger.Lock(snap.DeviceID)
	defer unlock()

	ok, err := s.ledger.ShouldDispatch(ctx, snap.DeviceID, c.State, now)
	if err != nil {
		logCtx.WithError(err).Error("Could not consult reminder ledger")
		f := newFailure(snap.DeviceID, FailureLedger, fmt.Errorf("%w: %w", ErrLedgerFailure, err))
		out.failure = &f
		return out
	}
	if !ok {
		logCtx.Debug("Reminder suppressed by cool-down")
		out.suppressed = true
		return out
	}

	msg := BuildReminder(snap, c, s.newID())
	dispatchCtx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
	err = s.dispatcher.Dispatch(dispatchCtx, msg)
	cancel()
	if err != nil {
		logCtx.WithError(err).Warn("Reminder dispatch failed; will retry next cycle")
		f := newFailure(snap.DeviceID, FailureDispatch, fmt.Errorf("%w: %w", ErrDispatchFailure, err))
		out.failure = &f
		return out
	}

	// The reminder went out, so record it even if the cycle is being cancelled.
	if err := s.ledger.RecordDispatch(context.WithoutCancel(ctx), snap.DeviceID, c.State, now); err != nil {
		logCtx.WithError(err).Error("Reminder sent but not recorded; it may be repeated next cycle")
		f := newFailure(snap.DeviceID, FailureLedger, fmt.Errorf("%w: %w", ErrLedgerFailure, err))
		out.failure = &f
	}
	out.dispatched = true
	logCtx.WithField("notification_id", msg.Payload.NotificationID).Info("Maintenance reminder dispatched")
	return out
}
