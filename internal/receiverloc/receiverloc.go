// Package receiverloc self-localizes a ground station from a local serial
// GPS receiver's NMEA output, supplying the reference point used by Local
// CPR decode and surface-position resolution when no location is
// configured manually.
package receiverloc

import (
	"bufio"
	"context"
	"net/http"
	"sync"

	"tailscale.com/tsweb"

	"github.com/flightdeck/trackerd/internal/monitoring"
)

// Locatorer is implemented by both Locator and DisabledLocator so the rest
// of the application can depend on an interface rather than a concrete
// serial-backed type.
type Locatorer interface {
	// Current returns the most recently parsed fix and whether one has
	// been received yet.
	Current() (Fix, bool)
	// Monitor reads NMEA sentences until ctx is cancelled or the port
	// errors.
	Monitor(ctx context.Context) error
	// Close releases the underlying port.
	Close() error
	// AttachAdminRoutes exposes a /debug/receiver-location endpoint.
	AttachAdminRoutes(mux *http.ServeMux)
}

// Locator reads NMEA sentences from a GPSPorter and keeps the latest fix
// available to callers, broadcasting updates to subscribers (mirroring the
// lifecycle of the station's other serial-attached devices).
type Locator struct {
	port GPSPorter

	mu      sync.RWMutex
	current Fix
	haveFix bool

	subMu sync.Mutex
	subs  map[string]chan Fix
}

var _ Locatorer = (*Locator)(nil)

// NewLocator wraps an already-open GPSPorter.
func NewLocator(port GPSPorter) *Locator {
	return &Locator{
		port: port,
		subs: make(map[string]chan Fix),
	}
}

// Current returns the latest fix, if any has been parsed yet.
func (l *Locator) Current() (Fix, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current, l.haveFix
}

// Subscribe returns a channel that receives every newly parsed fix.
func (l *Locator) Subscribe() (string, chan Fix) {
	id := randomID()
	ch := make(chan Fix, 1)
	l.subMu.Lock()
	l.subs[id] = ch
	l.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (l *Locator) Unsubscribe(id string) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	if ch, ok := l.subs[id]; ok {
		close(ch)
		delete(l.subs, id)
	}
}

// Monitor reads lines from the GPS port, parses NMEA position sentences,
// and updates the current fix until ctx is cancelled.
func (l *Locator) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(l.port)

	lineChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case errChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			return err
		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			fix, parsed, err := ParseSentence(line)
			if err != nil {
				monitoring.Logf("receiverloc: %v", err)
				continue
			}
			if !parsed {
				continue
			}

			l.mu.Lock()
			l.current = fix
			l.haveFix = true
			l.mu.Unlock()

			l.subMu.Lock()
			for _, ch := range l.subs {
				select {
				case ch <- fix:
				default:
				}
			}
			l.subMu.Unlock()
		}
	}
}

// Close closes all subscriber channels and the underlying port.
func (l *Locator) Close() error {
	l.subMu.Lock()
	for id, ch := range l.subs {
		close(ch)
		delete(l.subs, id)
	}
	l.subMu.Unlock()
	return l.port.Close()
}

// AttachAdminRoutes exposes the current fix under /debug/receiver-location.
func (l *Locator) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("receiver-location", "Current self-located GPS fix (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fix, ok := l.Current()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.Write([]byte(`{"valid":false}`))
			return
		}
		writeFixJSON(w, fix)
	}))
}
