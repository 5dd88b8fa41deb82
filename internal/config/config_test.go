package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	require.NoError(t, err)
	require.Equal(t, 31417, cfg.Port)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, LogLevelInfo, cfg.LogLevel)
	require.Equal(t, "Simulated Orbitrap Exploris 480", cfg.InstrumentName)
	require.Equal(t, "SIM-001", cfg.InstrumentID)
}

func TestParseRejectsInvalidLogLevel(t *testing.T) {
	_, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--log-level=verbose"})
	require.Error(t, err)
}

func TestParseOverlayMergesSimulationDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulation:
  scan_rate: 500
  random_seed: 42
bus_capacity: 200000
max_streams: 10
`), 0o644))

	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--config=" + path})
	require.NoError(t, err)
	require.Equal(t, 500.0, cfg.Simulation.ScanRate)
	require.Equal(t, int64(42), cfg.Simulation.RandomSeed)
	require.Equal(t, int32(4), cfg.Simulation.MS2PerMS1) // untouched default
	require.Equal(t, 200000, cfg.BusCapacity)
	require.Equal(t, 10, cfg.MaxStreams)
}

func TestParseMissingConfigFileFails(t *testing.T) {
	_, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--config=/no/such/file.yaml"})
	require.Error(t, err)
}
