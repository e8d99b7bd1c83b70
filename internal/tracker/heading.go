package tracker

import (
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/message"
	"github.com/flightdeck/trackerd/internal/units"
)

// maxCrabDeg is the implied-crab rejection threshold for a magnetic
// heading converted to true: if the declination-corrected value differs
// from a known ground track by more than this, the conversion is
// treated as unreliable rather than as a real crab angle (spec.md §4.2
// "Heading resolution").
const maxCrabDeg = 45.0

// resolveHeading applies spec.md §4.2 "Heading resolution": a message
// may carry ground track directly, true heading directly, or a
// magnetic/true-ambiguous heading that needs the cached opstatus HRD/TAH
// bits to disambiguate. Magnetic readings are converted to true via the
// cached declination estimate and rejected (downgraded to Indirect) if
// the implied crab angle versus a known ground track exceeds
// maxCrabDeg.
func (t *Tracker) resolveHeading(a *aircraft.Aircraft, msg *message.Message, now time.Time) {
	f := &msg.Fields
	src := msg.Source
	ts := msg.SystemTime
	if ts.IsZero() {
		ts = now
	}

	if f.HaveHRD {
		a.FusedScalars.HRD = f.HRD
	}
	if f.HaveTAH {
		a.FusedScalars.TAH = f.TAH
	}

	if f.HaveTrack {
		if accept(&a.Track, src, ts, now, t.Config) {
			commit(a, &a.Track, f.TrackDeg, src, ts, t.Config)
		}
	}

	if f.HaveTrueHeading {
		if accept(&a.TrueHeading, src, ts, now, t.Config) {
			commit(a, &a.TrueHeading, f.TrueHeadingDeg, src, ts, t.Config)
		}
		return
	}

	if !f.HaveMagHeading {
		return
	}

	// HRD (Horizontal Reference Direction) true when the heading quoted
	// is magnetic and needs conversion; TAH selects heading vs. track
	// when a field is otherwise ambiguous. An unambiguous reading with
	// HRD clear is already referenced to true north and is stored as the
	// true heading directly; every other reading is converted from
	// magnetic below.
	if !f.HeadingAmbiguous && !a.FusedScalars.HRD {
		if accept(&a.TrueHeading, src, ts, now, t.Config) {
			commit(a, &a.TrueHeading, f.MagHeadingDeg, src, ts, t.Config)
		}
		return
	}

	trueHdg := f.MagHeadingDeg + a.Derived.DeclinationDeg
	trueHdg = normalizeDeg(trueHdg)

	effectiveSrc := src
	if !a.Track.Zero() && !a.Track.Stale {
		if units.AngleDiffDegrees(trueHdg, a.Track.Value) > maxCrabDeg {
			effectiveSrc = message.Indirect
		}
	}

	if accept(&a.MagHeading, src, ts, now, t.Config) {
		commit(a, &a.MagHeading, f.MagHeadingDeg, src, ts, t.Config)
	}
	if accept(&a.TrueHeading, effectiveSrc, ts, now, t.Config) {
		commit(a, &a.TrueHeading, trueHdg, effectiveSrc, ts, t.Config)
	}
}

func normalizeDeg(d float64) float64 {
	for d < 0 {
		d += 360
	}
	for d >= 360 {
		d -= 360
	}
	return d
}
