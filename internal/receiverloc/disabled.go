package receiverloc

import (
	"context"
	"net/http"
)

// DisabledLocator reports a fixed, manually configured location instead of
// reading from hardware. Used when no GPS receiver is attached and the
// operator has set latitude/longitude/altitude in the station config.
type DisabledLocator struct {
	fix Fix
}

var _ Locatorer = (*DisabledLocator)(nil)

// NewDisabledLocator returns a Locatorer that always reports the given
// fixed coordinates.
func NewDisabledLocator(latitude, longitude, altitudeM float64) *DisabledLocator {
	return &DisabledLocator{
		fix: Fix{
			Latitude:    latitude,
			Longitude:   longitude,
			AltitudeM:   altitudeM,
			HasAltitude: true,
			Valid:       true,
		},
	}
}

// Current always returns the configured fix.
func (d *DisabledLocator) Current() (Fix, bool) {
	return d.fix, true
}

// Monitor blocks until ctx is cancelled; there is no hardware to read.
func (d *DisabledLocator) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close is a no-op.
func (d *DisabledLocator) Close() error { return nil }

// AttachAdminRoutes reports the configured location, same shape as Locator.
func (d *DisabledLocator) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/receiver-location", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeFixJSON(w, d.fix)
	})
}
