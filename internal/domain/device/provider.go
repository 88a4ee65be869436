package device

import (
	"context"
	"time"
)

// Provider supplies device snapshots. Implementations report per-device
// problems in Listing.Failures and reserve the error return for failures that
// prevent listing anything at all.
type Provider interface {
	ListMaintainableDevices(ctx context.Context, now time.Time) (Listing, error)
}
