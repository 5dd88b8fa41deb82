package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/orbitrap-sim/lcmssim/internal/bus"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// PreconditionFailedError reports a start attempted from a state other than
// {Idle, Completed}.
type PreconditionFailedError struct {
	State State
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("cannot start acquisition in state %s", e.State)
}

// UnsupportedError reports a reserved-but-unimplemented operation
// (pause/resume).
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s not implemented", e.Op)
}

// Hooks lets callers (telemetry, MQTT) observe engine activity without the
// engine importing them back.
type Hooks struct {
	OnStateChange   func(State)
	OnScanPublished func(spectrum.Scan)
	OnTickJitter    func(time.Duration)
}

// Engine is the single process-wide acquisition state machine. At most one
// producer task runs at a time (spec §3 Non-goals: no multi-run concurrency).
type Engine struct {
	state     atomic.Int32
	scanCount atomic.Int64

	sessionMu sync.Mutex
	sessionID string

	bus    *bus.Bus
	hooks  Hooks
	log    *slog.Logger
	runWG  sync.WaitGroup
}

// New creates an Engine publishing to bus b.
func New(b *bus.Bus, hooks Hooks, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{bus: b, hooks: hooks, log: logger}
	e.state.Store(int32(StateIdle))
	return e
}

// State reads the current state lock-free.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(s)
	}
}

// ScanCount reads the cumulative scan counter for the current/last session.
func (e *Engine) ScanCount() int64 {
	return e.scanCount.Load()
}

// SessionID reads the current session id ("" if none has started yet).
func (e *Engine) SessionID() string {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	return e.sessionID
}

// Start validates params, mints a session id, and spawns the producer task.
// It returns PreconditionFailedError without spawning anything if the
// current state disallows starting, and an InvalidConfig-shaped error
// (spectrum.ConfigError) if params are invalid — both surface synchronously,
// before any goroutine is spawned, per spec §4.3/§7. The producer does not
// inherit ctx's cancellation: a run ends only through Stop or its
// termination caps.
func (e *Engine) Start(ctx context.Context, params spectrum.Params, maxScans *int32, maxDurationSeconds *float64) (string, error) {
	current := e.State()
	if !current.canStart() {
		return "", &PreconditionFailedError{State: current}
	}
	if err := params.Validate(); err != nil {
		return "", err
	}
	// Claim Starting atomically so two concurrent starts cannot both spawn
	// a producer.
	if !e.state.CompareAndSwap(int32(current), int32(StateStarting)) {
		return "", &PreconditionFailedError{State: e.State()}
	}

	sessionID := uuid.New().String()[:8]

	e.sessionMu.Lock()
	e.sessionID = sessionID
	e.sessionMu.Unlock()

	e.scanCount.Store(0)
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(StateStarting)
	}

	e.runWG.Add(1)
	go e.runProducer(context.WithoutCancel(ctx), params, maxScans, maxDurationSeconds)

	e.log.Info("acquisition started", "session_id", sessionID, "scan_rate", params.ScanRate, "ms2_per_ms1", params.MS2PerMS1)
	return sessionID, nil
}

// Stop unconditionally requests termination; the producer observes Stopping
// at its next batch check and the engine reaches Completed shortly after.
// It always succeeds, per spec §4.3/§4.4.
func (e *Engine) Stop() int64 {
	prev := State(e.state.Swap(int32(StateStopping)))
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(StateStopping)
	}
	if prev.canStart() {
		// No producer is running to observe Stopping and finish the run.
		e.setState(StateCompleted)
	}
	return e.scanCount.Load()
}

// Pause is reserved; always reports Unsupported.
func (e *Engine) Pause() error {
	return &UnsupportedError{Op: "pause"}
}

// Resume is reserved; always reports Unsupported.
func (e *Engine) Resume() error {
	return &UnsupportedError{Op: "resume"}
}

// Subscribe attaches a new bus subscriber for stream_scans.
func (e *Engine) Subscribe() *bus.Subscriber {
	return e.bus.Subscribe()
}

// Wait blocks until the current (or most recently started) producer task
// has exited. Used by graceful shutdown.
func (e *Engine) Wait() {
	e.runWG.Wait()
}
