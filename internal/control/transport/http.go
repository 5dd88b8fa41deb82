// Package transport binds the transport-agnostic control.Surface to three
// concrete wire protocols, per SPEC_FULL.md Part E: plain HTTP+JSON for the
// six non-streaming operations, a gorilla/websocket feed for stream_scans,
// and an MCP tool surface for agent-facing control. It follows the
// teacher's own per-concern-per-file layout (websocket.go, prometheus.go,
// mcp_server.go all live as siblings in the teacher's main package; we keep
// that granularity inside this package instead).
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/orbitrap-sim/lcmssim/internal/control"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// HTTPHandler exposes get_instrument_info, get_status, start_acquisition,
// stop_acquisition, pause_acquisition and resume_acquisition as plain JSON
// HTTP endpoints. stream_scans is served separately by WebSocketHandler
// since it is long-lived.
type HTTPHandler struct {
	surface *control.Surface
	log     *slog.Logger
}

// NewHTTPHandler binds surface to HTTP.
func NewHTTPHandler(surface *control.Surface, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{surface: surface, log: logger}
}

// Register attaches every handler to mux under /api/v1/*, mirroring the
// teacher's convention of registering each concern's routes from its own
// constructor rather than centralizing route tables in main.go.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/instrument-info", h.handleInstrumentInfo)
	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/api/v1/start", h.handleStart)
	mux.HandleFunc("/api/v1/stop", h.handleStop)
	mux.HandleFunc("/api/v1/pause", h.handlePause)
	mux.HandleFunc("/api/v1/resume", h.handleResume)
}

func (h *HTTPHandler) handleInstrumentInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.surface.GetInstrumentInfo(r.Context()))
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.surface.GetStatus(r.Context()))
}

// startRequestBody is the JSON wire shape for start_acquisition; it decodes
// directly into a control.StartRequest with the spectrum.Params pointer
// left nil when the client omits "simulation" entirely, matching the
// optional-everything envelope of spec §3.
type startRequestBody struct {
	Simulation         *spectrum.Params `json:"simulation"`
	MaxScans           *int32           `json:"max_scans"`
	MaxDurationSeconds *float64         `json:"max_duration_seconds"`
}

func (h *HTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var body startRequestBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	resp := h.surface.StartAcquisition(r.Context(), control.StartRequest{
		Simulation:         body.Simulation,
		MaxScans:           body.MaxScans,
		MaxDurationSeconds: body.MaxDurationSeconds,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.surface.StopAcquisition(r.Context()))
}

func (h *HTTPHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.surface.PauseAcquisition(r.Context()))
}

func (h *HTTPHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.surface.ResumeAcquisition(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "err", err)
	}
}
