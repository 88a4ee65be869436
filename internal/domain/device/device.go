// internal/domain/device/device.go
package device

import "time"

// Snapshot is the minimal device data needed to classify maintenance state.
// It is fetched fresh every cycle.
type Snapshot struct {
	DeviceID          string
	DeviceName        string
	RestaurantName    string
	LastMaintenanceAt *time.Time // nil when the device was never serviced
	IntervalDays      int
	HasInterval       bool // false when the device's category defines no interval
}

// FetchFailure describes a device row the provider could not turn into a Snapshot.
type FetchFailure struct {
	DeviceID string // may be empty if the identifier itself could not be read
	Err      error
}

// Listing is the result of one provider call.
type Listing struct {
	Snapshots []Snapshot
	Failures  []FetchFailure
}
