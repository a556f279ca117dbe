package restapi

import (
	"time"

	"departureboard.app/internal/appconf"
	"departureboard.app/internal/realtime"
)

// StaleDetector flags realtime snapshots that stopped refreshing. A target
// is stale once it has missed missedRefreshes refreshes in a row, or after
// fallback when it has no refresh interval configured.
type StaleDetector struct {
	missedRefreshes int
	fallback        time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{missedRefreshes: 3, fallback: 15 * time.Minute}
}

func (d *StaleDetector) threshold(target appconf.RealtimeTarget) time.Duration {
	if target.RefreshInterval <= 0 {
		return d.fallback
	}
	return time.Duration(d.missedRefreshes) * target.RefreshInterval
}

// Check reports whether snap is missing or older than the target allows.
func (d *StaleDetector) Check(target appconf.RealtimeTarget, snap *realtime.Snapshot, now time.Time) bool {
	if snap == nil || snap.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(snap.FetchedAt) > d.threshold(target)
}
