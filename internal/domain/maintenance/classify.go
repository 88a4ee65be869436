// internal/domain/maintenance/classify.go
package maintenance

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// ErrInvalidInterval is returned by CheckInterval when a non-positive
// interval would reach the classifier.
var ErrInvalidInterval = fmt.Errorf("maintenance interval must be positive")

// CheckInterval guards the Classify precondition. Callers must not classify a
// device for which it returns an error.
func CheckInterval(intervalDays int) error {
	if intervalDays <= 0 {
		return fmt.Errorf("%w: got %d days", ErrInvalidInterval, intervalDays)
	}
	return nil
}

// NextDueAt returns when the next service is due. A device that was never
// serviced is assumed to be half way through its interval at now.
//
// Calendar arithmetic keeps very long intervals from overflowing a Duration.
func NextDueAt(lastMaintenanceAt *time.Time, intervalDays int, now time.Time) time.Time {
	if lastMaintenanceAt != nil {
		return lastMaintenanceAt.AddDate(0, 0, intervalDays)
	}
	due := now.AddDate(0, 0, intervalDays/2)
	if intervalDays%2 != 0 {
		due = due.Add(day / 2)
	}
	return due
}

// DaysUntil returns ceil((due - now) / 24h).
func DaysUntil(due, now time.Time) int {
	d := due.Sub(now)
	days := int(d / day)
	// integer division truncates toward zero, which is already the ceiling for negatives
	if d > 0 && d%day != 0 {
		days++
	}
	return days
}

// StateForOffset maps a days offset onto a State.
func StateForOffset(daysOffset int) State {
	switch {
	case daysOffset <= 0:
		return StateOverdue
	case daysOffset <= UpcomingWindowDays:
		return StateUpcoming
	default:
		return StateUpToDate
	}
}

// Classify maps a device's last service time and interval onto its
// maintenance state at now. It is pure and safe for concurrent use.
//
// intervalDays must be positive; see CheckInterval.
func Classify(lastMaintenanceAt *time.Time, intervalDays int, now time.Time) Classification {
	due := NextDueAt(lastMaintenanceAt, intervalDays, now)
	offset := DaysUntil(due, now)

	if lastMaintenanceAt == nil {
		// Never-serviced devices surface as upcoming regardless of interval length,
		// so a 30 day interval yields Upcoming with an offset of 15 even though a
		// serviced device at 15 days is UpToDate. The offset is measured from now
		// and stays constant until a service date is recorded; the ledger
		// cool-down paces the resulting reminders.
		return Classification{
			State:         StateUpcoming,
			DaysOffset:    offset,
			NextDueAt:     due,
			NeverServiced: true,
		}
	}

	return Classification{
		State:      StateForOffset(offset),
		DaysOffset: offset,
		NextDueAt:  due,
	}
}

// Badge renders a short label for a classification, shared by notifications,
// the HTTP API and the bot so they never disagree.
func Badge(c Classification) string {
	switch {
	case c.State == StateUpToDate:
		return "ok"
	case c.DaysOffset == 0:
		return "due today"
	case c.DaysOffset < 0:
		return fmt.Sprintf("overdue by %s", pluralDays(-c.DaysOffset))
	case c.NeverServiced:
		return fmt.Sprintf("never serviced, due in %s", pluralDays(c.DaysOffset))
	default:
		return fmt.Sprintf("due in %s", pluralDays(c.DaysOffset))
	}
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
