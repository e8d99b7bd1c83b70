package tracker

import (
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/message"
)

// updateGroundAir applies spec.md §4.2's ground/air state machine:
// INVALID/GROUND/AIRBORNE/UNCERTAIN. A CERTAIN state (GROUND or
// AIRBORNE) only yields to a fresher CERTAIN opposite-value message, or
// to age past TrackExpireLong; a surface-CPR frame forces GROUND and an
// airborne-CPR frame forces AIRBORNE, marking ReduceForward whenever
// that crossing changes the state.
func (t *Tracker) updateGroundAir(a *aircraft.Aircraft, msg *message.Message, now time.Time) {
	prev := a.GroundAir

	if msg.Fields.HaveCPR {
		forced := aircraft.StateAirborne
		if msg.Fields.CPRType == message.CPRSurface {
			forced = aircraft.StateGround
		}
		if forced != prev {
			a.GroundAir = forced
			a.GroundAirUpdated = now
			if prev == aircraft.StateGround || prev == aircraft.StateAirborne {
				a.ReduceForward = true
			}
			return
		}
		a.GroundAirUpdated = now
		return
	}

	if msg.Fields.HaveGroundBit {
		candidate := aircraft.StateAirborne
		if msg.Fields.OnGround {
			candidate = aircraft.StateGround
		}
		t.applyGroundBit(a, candidate, now)
		return
	}

	if t.isCertain(prev) && now.Sub(a.GroundAirUpdated) > t.Config.GetTrackExpireLong() {
		a.GroundAir = aircraft.StateUncertain
		a.GroundAirUpdated = now
	}
}

// applyGroundBit handles a direct ground-bit report: a CERTAIN state
// only changes on a fresher CERTAIN opposite value.
func (t *Tracker) applyGroundBit(a *aircraft.Aircraft, candidate aircraft.GroundAirState, now time.Time) {
	prev := a.GroundAir
	if !t.isCertain(prev) {
		a.GroundAir = candidate
		a.GroundAirUpdated = now
		return
	}
	if candidate != prev {
		a.GroundAir = candidate
		a.GroundAirUpdated = now
		return
	}
	a.GroundAirUpdated = now
}

func (t *Tracker) isCertain(s aircraft.GroundAirState) bool {
	return s == aircraft.StateGround || s == aircraft.StateAirborne
}
