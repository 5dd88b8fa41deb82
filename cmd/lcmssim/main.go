// Command lcmssim is the simulated LC-MS Orbitrap acquisition server.
// Bootstrap follows the teacher's main.go: parse flags, load layered
// config, wire every component's constructor, register HTTP routes from
// each handler, start listening, and shut down on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/orbitrap-sim/lcmssim/internal/bus"
	"github.com/orbitrap-sim/lcmssim/internal/config"
	"github.com/orbitrap-sim/lcmssim/internal/control"
	"github.com/orbitrap-sim/lcmssim/internal/control/transport"
	"github.com/orbitrap-sim/lcmssim/internal/engine"
	"github.com/orbitrap-sim/lcmssim/internal/telemetry"
)

// simulatorVersion is this binary's own version, reported alongside the
// instrument's firmware version in get_instrument_info.
const (
	simulatorVersion          = "1.0.0"
	instrumentFirmwareVersion = "3.2.1"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("lcmssim exited with error", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(flag.NewFlagSet("lcmssim", flag.ContinueOnError), args)
	if err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var mqttPublisher *telemetry.MQTTPublisher
	if cfg.MQTTBroker != "" {
		mqttPublisher, err = telemetry.NewMQTTPublisher(cfg.MQTTBroker, "lcmssim", logger)
		if err != nil {
			logger.Warn("mqtt telemetry disabled: connect failed", "err", err)
			mqttPublisher = nil
		} else {
			defer mqttPublisher.Close()
		}
	}

	b := bus.New(cfg.BusCapacity)

	// engBox lets the lifecycle hooks below read the engine's session id
	// and scan count once it exists, without engine.New needing a
	// circular reference to the Engine it is constructing.
	var engBox *engine.Engine
	eng := engine.New(b, mergeHooks(metrics, mqttPublisher, &engBox), logger)
	engBox = eng

	info := control.DefaultInstrumentInfo(cfg.InstrumentName, cfg.InstrumentID, instrumentFirmwareVersion, simulatorVersion)
	surface, err := control.NewSurface(eng, b, info)
	if err != nil {
		return fmt.Errorf("building control surface: %w", err)
	}

	httpHandler := transport.NewHTTPHandler(surface, logger)
	wsHandler := transport.NewWebSocketHandler(surface, metrics, logger)
	mcpServer := transport.NewMCPServer(surface, "lcmssim", simulatorVersion)

	mux := http.NewServeMux()
	httpHandler.Register(mux)
	wsHandler.Register(mux)
	mux.Handle("/mcp", mcpServer.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = gzhttp.GzipHandler(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := transport.NewListener(addr, cfg.ReusePort, cfg.MaxStreams)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	server := &http.Server{Handler: handler}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sampleStop := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("lcmssim listening", "addr", addr, "reuse_port", cfg.ReusePort)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		metrics.StartProcessSampler(5*time.Second, sampleStop)
		return nil
	})
	g.Go(func() error {
		metrics.StartSubscriberSampler(b.SubscriberCount, 5*time.Second, sampleStop)
		return nil
	})
	g.Go(func() error {
		mqttPublisher.StartRateSampler(eng.ScanCount, 5*time.Second, sampleStop)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		close(sampleStop)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// The producer is not tied to any request context; end a running
	// acquisition before waiting for it.
	eng.Stop()
	eng.Wait()
	return err
}

// mergeHooks combines the metrics and (optional) MQTT lifecycle hooks into
// one engine.Hooks, since engine.Hooks accepts only a single callback per
// event. engBox is filled in by the caller immediately after engine.New
// returns; the closures below only dereference it once a state transition
// actually fires, which never happens before then.
func mergeHooks(metrics *telemetry.Metrics, mqttPublisher *telemetry.MQTTPublisher, engBox **engine.Engine) engine.Hooks {
	metricsHooks := metrics.EngineHooks()
	if mqttPublisher == nil {
		return metricsHooks
	}

	mqttHooks := mqttPublisher.EngineHooks(
		func() string { return (*engBox).SessionID() },
		func() int64 { return (*engBox).ScanCount() },
	)

	return engine.Hooks{
		OnStateChange: func(s engine.State) {
			metricsHooks.OnStateChange(s)
			mqttHooks.OnStateChange(s)
		},
		OnScanPublished: metricsHooks.OnScanPublished,
		OnTickJitter:    metricsHooks.OnTickJitter,
	}
}
