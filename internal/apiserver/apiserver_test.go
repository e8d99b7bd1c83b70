package apiserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBatchSkipsAircraftWithoutPosition(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	now := time.Now()

	withPos, _ := reg.GetOrCreate(aircraft.Key{Addr: 1}, now)
	withPos.Lat, withPos.Lon = 1, 2
	withPos.LastPosition = now

	_, _ = reg.GetOrCreate(aircraft.Key{Addr: 2}, now)

	batch := BuildBatch(reg, now)
	require.Len(t, batch.Aircraft, 1)
	assert.Equal(t, "000001", batch.Aircraft[0].Hex)
}

func TestPublisherPublishDropsWhenNotRunning(t *testing.T) {
	p := NewPublisher(Config{ListenAddr: "localhost:0"})
	// Publish before Start must not panic or block.
	p.Publish(&AircraftUpdateBatch{})
	assert.Equal(t, uint64(0), p.batchCount.Load())
}

func TestPublisherStartStop(t *testing.T) {
	p := NewPublisher(Config{ListenAddr: "localhost:0", MaxClients: 2})
	require.NoError(t, p.Start())
	p.Publish(&AircraftUpdateBatch{NowMillis: 1})
	p.Stop()
}

func TestAttachRoutesServesJSONDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/aircraft.json", []byte(`{"aircraft":[]}`), 0o644))

	mux := http.NewServeMux()
	AttachRoutes(mux, dir, t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodGet, "/data/aircraft.json", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aircraft")
}

func TestTraceHistoryServesMatchingFile(t *testing.T) {
	historyDir := t.TempDir()
	require.NoError(t, os.MkdirAll(historyDir+"/000001", 0o755))
	require.NoError(t, os.WriteFile(historyDir+"/000001/2026-07-30.json.gz", []byte("gzdata"), 0o644))

	mux := http.NewServeMux()
	AttachRoutes(mux, t.TempDir(), historyDir, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/trace-history?hex=000001&date=2026-07-30", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "gzdata", rec.Body.String())
}

func TestTraceHistoryRejectsPathTraversal(t *testing.T) {
	historyDir := t.TempDir()

	mux := http.NewServeMux()
	AttachRoutes(mux, t.TempDir(), historyDir, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/trace-history?hex=..&date=..%2F..%2F..%2Fetc%2Fpasswd", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestTraceHistoryRequiresQueryParams(t *testing.T) {
	mux := http.NewServeMux()
	AttachRoutes(mux, t.TempDir(), t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/trace-history", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}
