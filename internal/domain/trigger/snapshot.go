package trigger

import "time"

// Snapshot is a point-in-time bundle of location, battery and health data
// used to enrich messages and calls. Enrichment is best-effort: any field
// may be zero when its source was unavailable.
type Snapshot struct {
	// Latitude and Longitude are the last known coordinates.
	Latitude  float64
	Longitude float64
	// Address is the human-readable resolved address, if any.
	Address string
	// BatteryPercent is the device battery level, 0-100.
	BatteryPercent int
	// HeartRate is the latest heart rate in bpm.
	HeartRate float64
	// RespiratoryRate is the latest respiratory rate in breaths/min.
	RespiratoryRate float64
	// CapturedAt is when the snapshot was assembled.
	CapturedAt time.Time
}

// Clone returns a copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil || s.CapturedAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}

	return now.Sub(s.CapturedAt)
}
