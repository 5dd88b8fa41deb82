// Package control implements the seven RPC-facing operations described in
// spec §4.4/§6. It is transport-agnostic: internal/control/transport binds
// these methods to websocket, HTTP JSON, and MCP tool surfaces.
package control

import (
	"context"
	"errors"

	"github.com/hashicorp/go-version"

	"github.com/orbitrap-sim/lcmssim/internal/bus"
	"github.com/orbitrap-sim/lcmssim/internal/engine"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// InstrumentInfo is the static descriptor returned by get_instrument_info.
type InstrumentInfo struct {
	InstrumentName               string   `json:"instrument_name"`
	InstrumentID                 string   `json:"instrument_id"`
	Model                        string   `json:"model"`
	SerialNumber                 string   `json:"serial_number"`
	FirmwareVersion              string   `json:"firmware_version"`
	SimulatorVersion             string   `json:"simulator_version"`
	SupportedAnalyzers           []string `json:"supported_analyzers"`
	SupportedFragmentationTypes  []string `json:"supported_fragmentation_types"`
	MinMz                        float64  `json:"min_mz"`
	MaxMz                        float64  `json:"max_mz"`
	MaxResolution                float64  `json:"max_resolution"`
}

// DefaultInstrumentInfo fills in every field original_source's Rust service
// returned statically, aside from the name/id/firmware the CLI supplies.
func DefaultInstrumentInfo(name, id, firmwareVersion, simulatorVersion string) InstrumentInfo {
	return InstrumentInfo{
		InstrumentName:              name,
		InstrumentID:                id,
		Model:                       "Orbitrap Exploris 480",
		SerialNumber:                id,
		FirmwareVersion:             firmwareVersion,
		SimulatorVersion:            simulatorVersion,
		SupportedAnalyzers:          []string{"Orbitrap"},
		SupportedFragmentationTypes: []string{"HCD", "CID"},
		MinMz:                       50.0,
		MaxMz:                       6000.0,
		MaxResolution:               480000.0,
	}
}

// StatusResponse answers get_status. Never fails.
type StatusResponse struct {
	State                string  `json:"state"`
	ScanCount            int64   `json:"scan_count"`
	CurrentRetentionTime float64 `json:"current_retention_time"`
	SessionID            string  `json:"session_id"`
	ErrorMessage         string  `json:"error_message"`
}

// StartRequest is the optional-everything envelope for start_acquisition.
type StartRequest struct {
	Simulation         *spectrum.Params
	MaxScans           *int32
	MaxDurationSeconds *float64
}

// StartResponse answers start_acquisition.
type StartResponse struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"session_id"`
	ErrorMessage string `json:"error_message"`
}

// StopResponse answers stop_acquisition.
type StopResponse struct {
	Success        bool   `json:"success"`
	FinalScanCount int64  `json:"final_scan_count"`
	ErrorMessage   string `json:"error_message"`
}

// SimpleResponse answers pause_acquisition/resume_acquisition.
type SimpleResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message"`
}

// Surface wires the engine and bus behind the seven narrow operations named
// in spec §4.4/§6.
type Surface struct {
	engine *engine.Engine
	bus    *bus.Bus
	info   InstrumentInfo
}

// NewSurface validates info.SimulatorVersion as a real semver (so a
// malformed simulator version string is caught at startup, not at the
// first get_instrument_info call) and returns the bound Surface.
func NewSurface(e *engine.Engine, b *bus.Bus, info InstrumentInfo) (*Surface, error) {
	if _, err := version.NewVersion(info.SimulatorVersion); err != nil {
		return nil, errors.New("simulator_version is not a valid semantic version: " + err.Error())
	}
	return &Surface{engine: e, bus: b, info: info}, nil
}

// GetInstrumentInfo never fails.
func (s *Surface) GetInstrumentInfo(context.Context) InstrumentInfo {
	return s.info
}

// GetStatus never fails. current_retention_time is pinned to 0.0 pending
// the open question in spec §9.
func (s *Surface) GetStatus(context.Context) StatusResponse {
	return StatusResponse{
		State:                s.engine.State().String(),
		ScanCount:            s.engine.ScanCount(),
		CurrentRetentionTime: 0.0,
		SessionID:            s.engine.SessionID(),
	}
}

// StartAcquisition merges req.Simulation over the documented defaults,
// validates it, and (on acceptance) spawns the producer.
func (s *Surface) StartAcquisition(ctx context.Context, req StartRequest) StartResponse {
	params := spectrum.DefaultParams()
	if req.Simulation != nil {
		params = req.Simulation.WithDefaults()
	}

	sessionID, err := s.engine.Start(ctx, params, req.MaxScans, req.MaxDurationSeconds)
	if err != nil {
		return StartResponse{Success: false, ErrorMessage: err.Error()}
	}
	return StartResponse{Success: true, SessionID: sessionID}
}

// StopAcquisition always succeeds.
func (s *Surface) StopAcquisition(context.Context) StopResponse {
	return StopResponse{Success: true, FinalScanCount: s.engine.Stop()}
}

// PauseAcquisition is reserved; always reports failure.
func (s *Surface) PauseAcquisition(context.Context) SimpleResponse {
	err := s.engine.Pause()
	return SimpleResponse{Success: false, ErrorMessage: err.Error()}
}

// ResumeAcquisition is reserved; always reports failure.
func (s *Surface) ResumeAcquisition(context.Context) SimpleResponse {
	err := s.engine.Resume()
	return SimpleResponse{Success: false, ErrorMessage: err.Error()}
}

// StreamScans attaches a new subscriber to the bus. Callers must Close it
// when the peer disconnects.
func (s *Surface) StreamScans(context.Context) *bus.Subscriber {
	return s.engine.Subscribe()
}
