package receiverloc

import (
	"context"
	"testing"
	"time"
)

func TestDisabledLocatorReportsConfiguredFix(t *testing.T) {
	d := NewDisabledLocator(48.1173, 11.5167, 545.4)

	fix, ok := d.Current()
	if !ok {
		t.Fatal("DisabledLocator should always report a fix")
	}
	if !fix.Valid {
		t.Fatal("expected Valid fix")
	}
	if fix.Latitude != 48.1173 || fix.Longitude != 11.5167 {
		t.Errorf("got (%v, %v), want (48.1173, 11.5167)", fix.Latitude, fix.Longitude)
	}
}

func TestDisabledLocatorMonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledLocator(0, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Monitor(ctx) }()

	select {
	case <-done:
		t.Fatal("Monitor should not return before context cancellation")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context.Canceled error")
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}
