// Package metadata caches the external aircraft-metadata database
// spec.md §1 names as an out-of-scope collaborator: a flat file this
// process only reads, mapping a 24-bit ICAO address to a registration
// and type-code, used to enrich the Identity fields spec.md §3 copies
// "from the metadata DB if present".
//
// Grounded on the teacher's internal/api.SerialPortManager.ReloadConfig
// (internal/api/serial_reload.go): the whole table is loaded fresh and
// swapped under one RWMutex rather than mutated in place, so concurrent
// Lookups never observe a half-built map mid-reload.
package metadata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record is one aircraft's metadata-DB entry.
type Record struct {
	Registration string
	TypeCode     string
}

// Store is a hot-reloadable, read-mostly cache of the metadata
// database, keyed by 24-bit ICAO address.
type Store struct {
	mu      sync.RWMutex
	records map[uint32]Record
	path    string
	modTime time.Time
}

// NewStore creates an empty Store bound to path, a CSV file of
// "hex,registration,typecode" rows. The store starts empty; call
// ReloadIfChanged (or Reload) to populate it.
func NewStore(path string) *Store {
	return &Store{records: make(map[uint32]Record), path: path}
}

// Lookup returns addr's registration/type-code, if the metadata DB
// carries an entry for it.
func (s *Store) Lookup(addr uint32) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[addr]
	return r, ok
}

// Len reports how many records are currently loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reload loads the backing file unconditionally, swapping the whole
// table on success.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("metadata: stat %s: %w", s.path, err)
	}
	records, err := loadCSV(s.path)
	if err != nil {
		return fmt.Errorf("metadata: load %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.records = records
	s.modTime = info.ModTime()
	s.mu.Unlock()
	return nil
}

// ReloadIfChanged reloads the backing file only if its mtime has
// advanced since the last successful load -- spec.md §4.6's "misc
// worker" calls this every cycle, and a file that hasn't changed
// since costs one stat call rather than a full re-parse.
func (s *Store) ReloadIfChanged() error {
	if s.path == "" {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("metadata: stat %s: %w", s.path, err)
	}

	s.mu.RLock()
	unchanged := !info.ModTime().After(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return nil
	}
	return s.Reload()
}

// loadCSV parses path's rows into an address-keyed table. Malformed
// rows (bad hex, wrong column count) are skipped rather than failing
// the whole load, since one bad line in an externally-maintained file
// shouldn't blind the tracker to every other aircraft's metadata.
func loadCSV(path string) (map[uint32]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	out := make(map[uint32]Record)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) < 2 {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimSpace(row[0]), 16, 32)
		if err != nil {
			continue
		}
		rec := Record{Registration: strings.TrimSpace(row[1])}
		if len(row) >= 3 {
			rec.TypeCode = strings.TrimSpace(row[2])
		}
		out[uint32(addr)] = rec
	}
	return out, nil
}
