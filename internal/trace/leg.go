package trace

import "time"

// LegDetector decides when a new point starts a new "leg" (one
// continuous flight) within an otherwise-unbroken trace, so playback
// can draw separate line segments instead of one long streak across a
// ground stop (spec.md §4.3 "Leg detection").
//
// A new leg starts when any of:
//   - the gap since the last point exceeds legGapThreshold (the
//     aircraft was untracked for long enough that whatever happened in
//     between is unknown);
//   - the ground/air state actually changed (a touch-and-go or a
//     takeoff/landing is always a leg boundary);
//   - the aircraft was continuously on the ground for longer than
//     legGroundThreshold (taxiing between two flights looks the same
//     as a single long ground leg unless split).
type LegDetector struct {
	legGapThreshold    time.Duration
	legGroundThreshold time.Duration

	lastTimestamp  time.Time
	lastGroundAir  int // aircraft.GroundAirState, kept as int to avoid an import cycle risk
	groundSince    time.Time
	onGroundStreak bool
}

// NewLegDetector creates a LegDetector with the thresholds named in
// spec.md §4.3 (a 30 minute data gap, or 25 minutes continuously on the
// ground, each starts a new leg).
func NewLegDetector() *LegDetector {
	return &LegDetector{
		legGapThreshold:    30 * time.Minute,
		legGroundThreshold: 25 * time.Minute,
	}
}

// Observe reports whether the point at (now, groundAir) starts a new
// leg, and updates the detector's state for the next call.
func (d *LegDetector) Observe(now time.Time, groundAir int, onGround bool) bool {
	newLeg := false

	if !d.lastTimestamp.IsZero() && now.Sub(d.lastTimestamp) > d.legGapThreshold {
		newLeg = true
	}
	if !d.lastTimestamp.IsZero() && groundAir != d.lastGroundAir {
		newLeg = true
	}

	if onGround {
		if !d.onGroundStreak {
			d.groundSince = now
			d.onGroundStreak = true
		} else if now.Sub(d.groundSince) > d.legGroundThreshold {
			newLeg = true
			d.groundSince = now // restart the streak so it doesn't re-fire every point
		}
	} else {
		d.onGroundStreak = false
	}

	d.lastTimestamp = now
	d.lastGroundAir = groundAir
	return newLeg
}
