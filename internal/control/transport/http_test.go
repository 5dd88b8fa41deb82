package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitrap-sim/lcmssim/internal/bus"
	"github.com/orbitrap-sim/lcmssim/internal/control"
	"github.com/orbitrap-sim/lcmssim/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSurface(t *testing.T) *control.Surface {
	t.Helper()
	b := bus.New(1000)
	eng := engine.New(b, engine.Hooks{}, testLogger())
	surface, err := control.NewSurface(eng, b, control.DefaultInstrumentInfo("Test Orbitrap", "SIM-TEST", "1.0.0", "1.0.0"))
	require.NoError(t, err)
	return surface
}

func TestHTTPInstrumentInfoNeverFails(t *testing.T) {
	surface := newTestSurface(t)
	h := NewHTTPHandler(surface, testLogger())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/instrument-info", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info control.InstrumentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "Test Orbitrap", info.InstrumentName)
}

func TestHTTPStartAndStatusRoundTrip(t *testing.T) {
	surface := newTestSurface(t)
	h := NewHTTPHandler(surface, testLogger())
	mux := http.NewServeMux()
	h.Register(mux)

	body := bytes.NewBufferString(`{"max_scans": 5}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/start", body)
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var startResp control.StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &startResp))
	require.True(t, startResp.Success)
	require.Len(t, startResp.SessionID, 8)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status control.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, startResp.SessionID, status.SessionID)
}

func TestHTTPStartRejectsGet(t *testing.T) {
	surface := newTestSurface(t)
	h := NewHTTPHandler(surface, testLogger())
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/start", nil)
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPPauseResumeReportUnsupported(t *testing.T) {
	surface := newTestSurface(t)
	h := NewHTTPHandler(surface, testLogger())
	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/api/v1/pause", "/api/v1/resume"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp control.SimpleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.False(t, resp.Success)
		require.Contains(t, resp.ErrorMessage, "not implemented")
	}
}
