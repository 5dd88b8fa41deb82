package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitrap-sim/lcmssim/internal/bus"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int32) *int32 { return &v }

func TestStartStopHappyPath(t *testing.T) {
	b := bus.New(1000)
	e := New(b, Hooks{}, testLogger())
	sub := b.Subscribe()
	defer sub.Close()

	params := spectrum.DefaultParams()
	sessionID, err := e.Start(context.Background(), params, intPtr(20), nil)
	require.NoError(t, err)
	require.Len(t, sessionID, 8)

	var orders []int32
	for i := 0; i < 20; i++ {
		scan, _, _, ok := sub.Recv(context.Background())
		require.True(t, ok)
		require.Equal(t, int32(i+1), scan.ScanNumber)
		orders = append(orders, int32(scan.MSOrder))
	}

	expected := []int32{1, 2, 2, 2, 2, 1, 2, 2, 2, 2, 1, 2, 2, 2, 2, 1, 2, 2, 2, 2}
	require.Equal(t, expected, orders)

	e.Wait()
	require.Equal(t, StateCompleted, e.State())
	require.Equal(t, int64(20), e.ScanCount())
}

func TestRejectedRestartWhileAcquiring(t *testing.T) {
	b := bus.New(1000)
	e := New(b, Hooks{}, testLogger())

	maxDuration := 2.0
	_, err := e.Start(context.Background(), spectrum.DefaultParams(), nil, &maxDuration)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return e.State() == StateAcquiring }, time.Second, time.Millisecond)

	_, err = e.Start(context.Background(), spectrum.DefaultParams(), nil, nil)
	require.Error(t, err)
	var preErr *PreconditionFailedError
	require.ErrorAs(t, err, &preErr)
	require.Equal(t, StateAcquiring, preErr.State)

	e.Stop()
	e.Wait()
}

func TestInvalidConfigSurfacesSynchronously(t *testing.T) {
	b := bus.New(100)
	e := New(b, Hooks{}, testLogger())

	params := spectrum.DefaultParams()
	params.MinMz = 2000
	params.MaxMz = 200

	_, err := e.Start(context.Background(), params, nil, nil)
	require.Error(t, err)
	var cfgErr *spectrum.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, StateIdle, e.State())
}

func TestDurationTermination(t *testing.T) {
	b := bus.New(10000)
	e := New(b, Hooks{}, testLogger())

	params := spectrum.DefaultParams()
	params.ScanRate = 100
	maxDuration := 0.3

	start := time.Now()
	_, err := e.Start(context.Background(), params, nil, &maxDuration)
	require.NoError(t, err)

	e.Wait()
	elapsed := time.Since(start)

	require.Equal(t, StateCompleted, e.State())
	require.Less(t, elapsed, 2*time.Second)
	require.Greater(t, e.ScanCount(), int64(0))
}

func TestStopMidRun(t *testing.T) {
	b := bus.New(20000)
	e := New(b, Hooks{}, testLogger())

	params := spectrum.DefaultParams()
	params.ScanRate = 500
	_, err := e.Start(context.Background(), params, intPtr(1000000), nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	final := e.Stop()

	e.Wait()
	require.Equal(t, StateCompleted, e.State())
	require.LessOrEqual(t, final, e.ScanCount())

	countAfterStop := e.ScanCount()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, countAfterStop, e.ScanCount())
}

func TestRestartAfterCompletionMintsNewSession(t *testing.T) {
	b := bus.New(1000)
	e := New(b, Hooks{}, testLogger())

	id1, err := e.Start(context.Background(), spectrum.DefaultParams(), intPtr(5), nil)
	require.NoError(t, err)
	e.Wait()
	require.Equal(t, StateCompleted, e.State())

	id2, err := e.Start(context.Background(), spectrum.DefaultParams(), intPtr(5), nil)
	require.NoError(t, err)
	e.Wait()

	require.NotEqual(t, id1, id2)
	require.Equal(t, int64(5), e.ScanCount())
}

func TestPauseResumeUnsupported(t *testing.T) {
	b := bus.New(10)
	e := New(b, Hooks{}, testLogger())

	err := e.Pause()
	require.Error(t, err)
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)

	err = e.Resume()
	require.Error(t, err)
	require.ErrorAs(t, err, &unsupported)
}
