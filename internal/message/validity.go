package message

import "time"

// DefaultStaleAfter is the default window (spec.md §3) a field stays
// "fresh" after an update before a lower-priority source is allowed to
// overwrite it. Callers needing the configured value should use
// config.TrackerConfig.GetTrackStale instead; this is the data-model
// default for standalone use (e.g. tests).
const DefaultStaleAfter = 60 * time.Second

// ValidityRecord tracks the provenance of one fused scalar on an
// Aircraft: its current value, the source that last wrote it, the
// highest-priority source that has *ever* written it (which never
// downgrades), the time of the last accepted update, a cached stale
// flag, and the next time this field is eligible to be included in a
// reduced-bandwidth forward (spec.md §3, §4.2 "On accept").
type ValidityRecord[T any] struct {
	Value             T
	Source            Source
	LastSource        Source
	Updated           time.Time
	Stale             bool
	NextReduceForward time.Time
}

// Zero reports whether this record has never been written, per the
// invariant "no validity record has source > INVALID with timestamp ==
// 0" (spec.md §3 Invariants).
func (v *ValidityRecord[T]) Zero() bool {
	return v.Source == Invalid && v.Updated.IsZero()
}

// RefreshStale recomputes Stale against now and staleAfter. Callers run
// this before consulting Stale in accept_data (spec.md §4.2).
func (v *ValidityRecord[T]) RefreshStale(now time.Time, staleAfter time.Duration) {
	if v.Updated.IsZero() {
		v.Stale = true
		return
	}
	v.Stale = now.Sub(v.Updated) > staleAfter
}

// Accept reports whether a candidate update from src at time ts may
// overwrite this record, applying the core accept_data rule (spec.md
// §4.2): reject if src is Invalid or ts predates the current update;
// reject if src is strictly worse than the current source while the
// current value is still fresh. It does not itself apply source-specific
// guards (MLAT/Jaero windows) -- those are layered on by the tracker,
// which has access to the full Aircraft and Message context.
func (v *ValidityRecord[T]) Accept(src Source, ts time.Time, now time.Time, staleAfter time.Duration) bool {
	if src == Invalid {
		return false
	}
	if !v.Updated.IsZero() && ts.Before(v.Updated) {
		return false
	}
	v.RefreshStale(now, staleAfter)
	if src.Worse(v.Source) && !v.Stale {
		return false
	}
	return true
}

// Set commits an accepted update: value, source, last-ever source
// (never downgraded), timestamp, and clears Stale.
func (v *ValidityRecord[T]) Set(value T, src Source, ts time.Time) {
	v.Value = value
	v.Source = src
	if src.AtLeast(v.LastSource) {
		v.LastSource = src
	}
	v.Updated = ts
	v.Stale = false
}

// ReduceForwardEligible reports whether ts has reached this field's
// next_reduce_forward deadline and, if so, reschedules it interval past ts
// (spec.md §3, §4.2 "On accept": "set the next_reduce_forward timestamp...
// and mark mm.reduce_forward = true if eligible"). Call once per accepted
// update, after Set.
func (v *ValidityRecord[T]) ReduceForwardEligible(ts time.Time, interval time.Duration) bool {
	if ts.Before(v.NextReduceForward) {
		return false
	}
	v.NextReduceForward = ts.Add(interval)
	return true
}
