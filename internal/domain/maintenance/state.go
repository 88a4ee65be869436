// internal/domain/maintenance/state.go
package maintenance

import "time"

// State is the derived maintenance status of a device. It is recomputed on
// every evaluation and never persisted.
type State string

const (
	StateUpToDate State = "UP_TO_DATE"
	StateUpcoming State = "UPCOMING"
	StateOverdue  State = "OVERDUE"
)

// UpcomingWindowDays is the inclusive upper bound of the Upcoming window.
const UpcomingWindowDays = 14

func (s State) String() string { return string(s) }

// IsActionable reports whether a device in this state may trigger a reminder.
func (s State) IsActionable() bool {
	return s == StateUpcoming || s == StateOverdue
}

// Classification is the result of Classify.
type Classification struct {
	State      State
	DaysOffset int // negative = days overdue, positive = days until due
	NextDueAt  time.Time
	// NeverServiced is set when the due date was estimated with the half-interval rule.
	NeverServiced bool
}
