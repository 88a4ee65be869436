// internal/app/report.go
package app

import (
	"fmt"
	"sort"
	"time"

	"restaurant_asset_tracker/internal/domain/maintenance"
)

// Error taxonomy for per-device failures inside a cycle.
var (
	ErrFetchFailure    = fmt.Errorf("device snapshot fetch failed")
	ErrDispatchFailure = fmt.Errorf("notification dispatch failed")
	ErrLedgerFailure   = fmt.Errorf("reminder ledger access failed")
	ErrCycleInProgress = fmt.Errorf("maintenance cycle already in progress")
)

// FailureKind classifies a DeviceFailure.
type FailureKind string

const (
	FailureFetch        FailureKind = "FETCH"
	FailureDispatch     FailureKind = "DISPATCH"
	FailurePrecondition FailureKind = "CLASSIFICATION_PRECONDITION"
	FailureLedger       FailureKind = "LEDGER"
)

// DeviceFailure is a per-device problem recorded during a cycle.
type DeviceFailure struct {
	DeviceID string      `json:"device_id"`
	Kind     FailureKind `json:"kind"`
	Err      error       `json:"-"`
	Message  string      `json:"error"`
}

func newFailure(deviceID string, kind FailureKind, err error) DeviceFailure {
	return DeviceFailure{DeviceID: deviceID, Kind: kind, Err: err, Message: err.Error()}
}

// CycleReport summarizes one run of the scheduler.
type CycleReport struct {
	EvaluatedAt time.Time       `json:"evaluated_at"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Seen        int             `json:"seen"`
	Upcoming    int             `json:"upcoming"`
	Overdue     int             `json:"overdue"`
	Dispatched  int             `json:"dispatched"`
	Suppressed  int             `json:"suppressed"`
	Skipped     int             `json:"skipped"`
	Failures    []DeviceFailure `json:"failures"`
	FetchError  string          `json:"fetch_error,omitempty"`
	Cancelled   bool            `json:"cancelled"`
}

// FailuresOf returns the failures of one kind.
func (r CycleReport) FailuresOf(kind FailureKind) []DeviceFailure {
	var out []DeviceFailure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// deviceOutcome is what processing a single device contributes to the report.
type deviceOutcome struct {
	skipped    bool
	state      maintenance.State
	dispatched bool
	suppressed bool
	failure    *DeviceFailure
}

func (r *CycleReport) apply(o deviceOutcome) {
	if o.skipped {
		r.Skipped++
	}
	switch o.state {
	case maintenance.StateUpcoming:
		r.Upcoming++
	case maintenance.StateOverdue:
		r.Overdue++
	}
	if o.dispatched {
		r.Dispatched++
	}
	if o.suppressed {
		r.Suppressed++
	}
	if o.failure != nil {
		r.Failures = append(r.Failures, *o.failure)
	}
}

func (r *CycleReport) sortFailures() {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		return r.Failures[i].DeviceID < r.Failures[j].DeviceID
	})
}
