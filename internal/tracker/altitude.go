package tracker

import (
	"math"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/message"
)

// baroToleranceBumpFpm (the +1500 ft/min tolerance bump) and
// baroToleranceCapFpm are spec.md §4.2 "Altitude fusion" constants.
const (
	baroToleranceBumpFpm = 1500
	baroToleranceCapFpm  = 11000
	// staleToleranceGrowthFpmPerMin grows the tolerance the staler the
	// known rate is; from a zero rate the tolerance reaches the cap after
	// about 48 minutes.
	staleToleranceGrowthFpmPerMin = 200
)

// fuseAltitude applies spec.md §4.2 "Altitude fusion": baro altitude is
// accepted only if its change versus the previous value is plausible
// given the known vertical rate; implausible changes decrement
// alt_reliable, accepted ones increment it (more strongly for a
// good-CRC message), and alt_reliable hitting zero marks the altitude
// invalid. Geometric altitude is derived from baro+geom_delta when no
// direct geometric reading is available.
func (t *Tracker) fuseAltitude(a *aircraft.Aircraft, msg *message.Message, now time.Time) {
	f := &msg.Fields
	src := msg.Source
	ts := msg.SystemTime
	if ts.IsZero() {
		ts = now
	}

	if f.HaveBaroAlt {
		t.fuseBaroAlt(a, f.BaroAltFt, src, ts, now, msg.CRCGood)
	}

	switch {
	case f.HaveGeomAlt:
		if accept(&a.GeomAltFt, src, ts, now, t.Config) {
			commit(a, &a.GeomAltFt, f.GeomAltFt, src, ts, t.Config)
		}
	case f.HaveGeomDelta && !a.BaroAltFt.Zero() && !a.BaroAltFt.Stale:
		derived := a.BaroAltFt.Value + f.GeomDeltaFt
		if accept(&a.GeomAltFt, src, ts, now, t.Config) {
			commit(a, &a.GeomAltFt, derived, src, ts, t.Config)
		}
	}
}

func (t *Tracker) fuseBaroAlt(a *aircraft.Aircraft, altFt float64, src message.Source, ts, now time.Time, crcGood bool) {
	if !accept(&a.BaroAltFt, src, ts, now, t.Config) {
		return
	}

	if !a.BaroAltFt.Zero() {
		dt := ts.Sub(a.BaroAltFt.Updated)
		if dt > 0 && !altitudeChangeIsPlausible(altFt, a.BaroAltFt.Value, dt, a.BaroRateFpm, a.GeomRateFpm, now) {
			a.AltReliable--
			if a.AltReliable <= 0 {
				a.AltReliable = 0
				a.BaroAltFt.Stale = true
			}
			return
		}
	}

	commit(a, &a.BaroAltFt, altFt, src, ts, t.Config)
	inc := 1
	if crcGood {
		inc = 2
	}
	persistCap := t.Config.GetFilterPersistence()
	a.AltReliable += inc
	if a.AltReliable > persistCap {
		a.AltReliable = persistCap
	}
}

// altitudeChangeIsPlausible implements the tolerance-vs-vertical-rate
// check: tolerance is |geom_rate| (or |baro_rate| if geom is unset) plus
// a 1500 ft/min bump, growing with how stale that rate reading is and
// capped at ~11000 ft/min, scaled by the elapsed time between readings.
func altitudeChangeIsPlausible(newAlt, oldAlt float64, dt time.Duration, baroRate, geomRate message.ValidityRecord[float64], now time.Time) bool {
	rate := math.Abs(geomRate.Value)
	rateUpdated := geomRate.Updated
	if geomRate.Zero() {
		rate = math.Abs(baroRate.Value)
		rateUpdated = baroRate.Updated
	}

	tolerance := rate + baroToleranceBumpFpm
	if !rateUpdated.IsZero() {
		tolerance += now.Sub(rateUpdated).Minutes() * staleToleranceGrowthFpmPerMin
	} else {
		tolerance = baroToleranceCapFpm
	}
	if tolerance > baroToleranceCapFpm {
		tolerance = baroToleranceCapFpm
	}

	maxDelta := tolerance * dt.Minutes()
	return math.Abs(newAlt-oldAlt) <= maxDelta
}
