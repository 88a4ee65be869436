package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant_asset_tracker/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MaintenanceScheduler runs maintenance cycles on a cron schedule. Cycles never
// overlap: the cron chain skips a tick while the previous job is running and
// the cycle service rejects concurrent callers.
type MaintenanceScheduler struct {
	cronEngine   *cron.Cron
	cycles       app.CycleRunner
	logger       *logrus.Entry
	cronSpec     string
	cycleTimeout time.Duration
	now          func() time.Time

	ctx    context.Context // cancelled by Stop to abort an in-flight cycle
	cancel context.CancelFunc
}

func NewMaintenanceScheduler(
	cycles app.CycleRunner,
	logger *logrus.Entry,
	cronSpec string, // e.g., "0 9 * * *" (9 AM daily)
	cycleTimeout time.Duration,
) *MaintenanceScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(logger.WithField("subsystem", "cron"))
	return &MaintenanceScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local), // Use server's local time for cron
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		cycles:       cycles,
		logger:       logger.WithField("component", "scheduler"),
		cronSpec:     cronSpec,
		cycleTimeout: cycleTimeout,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start registers the cycle job and starts the cron engine.
func (s *MaintenanceScheduler) Start() error {
	s.logger.Info("Starting maintenance scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for maintenance cycle.")
		s.runJob()
	})
	if err != nil {
		return fmt.Errorf("could not add maintenance cycle cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("Maintenance scheduler started.")
	return nil
}

// RunNow runs a cycle outside the cron schedule, e.g. when the app comes to
// the foreground. It shares the single-flight guard with scheduled runs.
func (s *MaintenanceScheduler) RunNow(ctx context.Context) (app.CycleReport, error) {
	ctx, cancel := s.jobContext(ctx)
	defer cancel()
	return s.cycles.RunCycle(ctx, s.now())
}

func (s *MaintenanceScheduler) runJob() {
	ctx, cancel := s.jobContext(context.Background())
	defer cancel()

	report, err := s.cycles.RunCycle(ctx, s.now())
	switch {
	case errors.Is(err, app.ErrCycleInProgress):
		s.logger.Info("Previous maintenance cycle still running; skipping this tick.")
	case err != nil:
		s.logger.WithError(err).Error("Maintenance cycle failed")
	case len(report.Failures) > 0:
		s.logger.WithField("failures", len(report.Failures)).Warn("Maintenance cycle completed with per-device failures")
	}
}

// jobContext derives a context that ends at the cycle timeout, when parent
// ends, or when the scheduler stops.
func (s *MaintenanceScheduler) jobContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, s.cycleTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Stop cancels any in-flight cycle and waits for running jobs to return.
func (s *MaintenanceScheduler) Stop() {
	s.logger.Info("Stopping maintenance scheduler...")
	s.cancel()
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Maintenance scheduler gracefully stopped.")
}
