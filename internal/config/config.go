// Package config parses the simulator's CLI surface (spec §6) and layers an
// optional YAML file underneath it, following the teacher's own
// flag-plus-YAML pattern (main.go's flag.String/flag.Bool calls layered
// under config.go's gopkg.in/yaml.v3 struct).
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// traceLevel is one slog step below LevelDebug, matching the five-level
// --log-level contract literally (trace/debug/info/warn/error) the way
// the retrieval pack's internal/logger package models TRACE below DEBUG.
const traceLevel = slog.Level(-8)

// LogLevel is the five-value level the --log-level flag accepts (spec §6).
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config is the fully resolved process configuration: CLI flags overridden
// by nothing (flags always win), with an optional --config YAML file
// supplying the simulation parameters and bus capacity, which have no
// flags, and max_streams/mqtt_broker where those flags were not given. The
// instrument descriptor comes from the flags only.
type Config struct {
	Port           int
	Host           string
	LogLevel       LogLevel
	InstrumentName string
	InstrumentID   string

	// Additions beyond the literal §6 CLI surface (Part C):
	ConfigFile  string
	ReusePort   bool
	MQTTBroker  string
	MaxStreams  int

	Simulation   spectrum.Params
	BusCapacity  int
}

// fileOverlay is the optional YAML shape loaded from --config. Every field
// is optional; an absent field leaves the flag-derived default untouched.
type fileOverlay struct {
	Simulation *struct {
		ScanRate   float64 `yaml:"scan_rate"`
		MS2PerMS1  int32   `yaml:"ms2_per_ms1"`
		MinMz      float64 `yaml:"min_mz"`
		MaxMz      float64 `yaml:"max_mz"`
		Resolution float64 `yaml:"resolution"`
		NoiseLevel float64 `yaml:"noise_level"`
		RandomSeed int64   `yaml:"random_seed"`
	} `yaml:"simulation"`
	BusCapacity int `yaml:"bus_capacity"`
	MaxStreams  int `yaml:"max_streams"`
	MQTTBroker  string `yaml:"mqtt_broker"`
}

// Defaults returns the flag defaults from spec §6, before any --config
// overlay or flag override is applied.
func Defaults() Config {
	return Config{
		Port:           31417,
		Host:           "0.0.0.0",
		LogLevel:       LogLevelInfo,
		InstrumentName: "Simulated Orbitrap Exploris 480",
		InstrumentID:   "SIM-001",
		Simulation:     spectrum.DefaultParams(),
		BusCapacity:    0, // 0 => bus.DefaultCapacity
		MaxStreams:     256,
	}
}

// Parse parses args (normally os.Args[1:]) into a Config. It mirrors the
// original Rust clap::Parser struct flag-for-flag (spec §6/SPEC_FULL Part
// D.4): -p/--port, -H/--host, -l/--log-level, --instrument-name,
// --instrument-id, plus the pure additions --config, --reuse-port and
// --mqtt-broker, each independently defaulted to disabled.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Defaults()

	var port int
	var host, logLevel, instrumentName, instrumentID, configFile, mqttBroker string
	var reusePort bool
	var maxStreams int

	fs.IntVar(&port, "port", cfg.Port, "TCP port to listen on")
	fs.IntVar(&port, "p", cfg.Port, "TCP port to listen on (shorthand)")
	fs.StringVar(&host, "host", cfg.Host, "address to bind to")
	fs.StringVar(&host, "H", cfg.Host, "address to bind to (shorthand)")
	fs.StringVar(&logLevel, "log-level", string(cfg.LogLevel), "trace|debug|info|warn|error")
	fs.StringVar(&logLevel, "l", string(cfg.LogLevel), "log level (shorthand)")
	fs.StringVar(&instrumentName, "instrument-name", cfg.InstrumentName, "reported instrument name")
	fs.StringVar(&instrumentID, "instrument-id", cfg.InstrumentID, "reported instrument id / serial number")
	fs.StringVar(&configFile, "config", "", "optional YAML file overriding simulation/server defaults")
	fs.BoolVar(&reusePort, "reuse-port", false, "set SO_REUSEPORT on the control-surface listener")
	fs.StringVar(&mqttBroker, "mqtt-broker", "", "optional MQTT broker URL for acquisition lifecycle telemetry")
	fs.IntVar(&maxStreams, "max-streams", cfg.MaxStreams, "maximum concurrent stream_scans subscribers")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Port = port
	cfg.Host = host
	cfg.LogLevel = LogLevel(logLevel)
	cfg.InstrumentName = instrumentName
	cfg.InstrumentID = instrumentID
	cfg.ConfigFile = configFile
	cfg.ReusePort = reusePort
	cfg.MQTTBroker = mqttBroker
	cfg.MaxStreams = maxStreams

	if !cfg.LogLevel.valid() {
		return Config{}, fmt.Errorf("invalid --log-level %q: must be one of trace, debug, info, warn, error", logLevel)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyOverlay(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
		// An explicitly given --max-streams wins over the file.
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "max-streams" {
				cfg.MaxStreams = maxStreams
			}
		})
	}

	return cfg, nil
}

// SlogLevel converts the CLI --log-level flag to a slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelTrace:
		return traceLevel
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l LogLevel) valid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// applyOverlay loads the YAML file at path and layers its fields over the
// flag-derived defaults, using the same field-by-field positivity merge the
// original service applies to SimulationParameters (SPEC_FULL Part D.1):
// an absent or zero YAML field leaves the existing value untouched.
func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if overlay.Simulation != nil {
		sim := overlay.Simulation
		if sim.ScanRate > 0 {
			c.Simulation.ScanRate = sim.ScanRate
		}
		if sim.MS2PerMS1 > 0 {
			c.Simulation.MS2PerMS1 = sim.MS2PerMS1
		}
		if sim.MinMz > 0 {
			c.Simulation.MinMz = sim.MinMz
		}
		if sim.MaxMz > 0 {
			c.Simulation.MaxMz = sim.MaxMz
		}
		if sim.Resolution > 0 {
			c.Simulation.Resolution = sim.Resolution
		}
		if sim.NoiseLevel > 0 {
			c.Simulation.NoiseLevel = sim.NoiseLevel
		}
		if sim.RandomSeed != 0 {
			c.Simulation.RandomSeed = sim.RandomSeed
		}
	}
	if overlay.BusCapacity > 0 {
		c.BusCapacity = overlay.BusCapacity
	}
	if overlay.MaxStreams > 0 {
		c.MaxStreams = overlay.MaxStreams
	}
	if overlay.MQTTBroker != "" && c.MQTTBroker == "" {
		c.MQTTBroker = overlay.MQTTBroker
	}

	return nil
}
