// Package telemetry wires the acquisition engine's activity into Prometheus
// (scan and lag counters, state and subscriber gauges, tick-jitter
// histogram, process gauges) and an optional MQTT publisher for
// lifecycle events, following the teacher's own prometheus.go
// (promauto-constructed metrics registered at construction, no manual
// registry bookkeeping) and mqtt_publisher.go (paho client with async
// publish) patterns.
package telemetry

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/orbitrap-sim/lcmssim/internal/engine"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// Metrics holds the Prometheus collectors for one simulator process. Unlike
// the teacher's single global PrometheusMetrics, this is constructed once
// in cmd/lcmssim/main.go and threaded to every component that reports
// activity, so tests can construct their own registry instead of reaching
// for package-level state.
type Metrics struct {
	scansEmitted     *prometheus.CounterVec // labeled by ms_order
	acquisitionState prometheus.Gauge
	subscribers      prometheus.Gauge
	busLag           prometheus.Counter
	tickJitter       prometheus.Histogram
	processCPU       prometheus.Gauge
	processRSS       prometheus.Gauge
}

// NewMetrics registers every collector with reg. cmd/lcmssim/main.go and the
// tests each pass their own prometheus.NewRegistry() rather than
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		scansEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lcmssim_scans_emitted_total",
			Help: "Total scans published to the broadcast bus, by ms_order.",
		}, []string{"ms_order"}),
		acquisitionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lcmssim_acquisition_state",
			Help: "Current acquisition state as an ordinal (0=Idle..6=Faulted).",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lcmssim_stream_subscribers",
			Help: "Number of stream_scans subscribers currently attached to the bus.",
		}),
		busLag: factory.NewCounter(prometheus.CounterOpts{
			Name: "lcmssim_bus_lag_events_total",
			Help: "Count of per-subscriber lag/drop events observed by stream forwarders.",
		}),
		tickJitter: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lcmssim_producer_tick_jitter_seconds",
			Help:    "Observed delay between the producer's tick deadline and actual wakeup.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		processCPU: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lcmssim_process_cpu_percent",
			Help: "Simulator process CPU usage percent, sampled periodically.",
		}),
		processRSS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lcmssim_process_rss_bytes",
			Help: "Simulator process resident set size in bytes, sampled periodically.",
		}),
	}
}

// EngineHooks adapts Metrics to engine.Hooks so the acquisition state gauge
// and scans-emitted counter stay in lockstep with the engine without the
// engine package importing Prometheus directly.
func (m *Metrics) EngineHooks() engine.Hooks {
	return engine.Hooks{
		OnStateChange: func(s engine.State) {
			m.acquisitionState.Set(float64(s))
		},
		OnScanPublished: func(scan spectrum.Scan) {
			label := "1"
			if scan.MSOrder == spectrum.MS2 {
				label = "2"
			}
			m.scansEmitted.WithLabelValues(label).Inc()
		},
		OnTickJitter: m.ObserveTickJitter,
	}
}

// ObserveTickJitter records how late a producer tick fired relative to its
// scheduled deadline.
func (m *Metrics) ObserveTickJitter(d time.Duration) {
	m.tickJitter.Observe(d.Seconds())
}

// SetSubscriberCount reports the bus's current subscriber count.
func (m *Metrics) SetSubscriberCount(n int) {
	m.subscribers.Set(float64(n))
}

// IncBusLag records a single stream-side lag/drop event.
func (m *Metrics) IncBusLag() {
	m.busLag.Inc()
}

// StartSubscriberSampler periodically reports count() (typically
// bus.Bus.SubscriberCount) to the subscriber gauge. It runs until stop is
// closed.
func (m *Metrics) StartSubscriberSampler(count func() int, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.SetSubscriberCount(count())
		}
	}
}

// StartProcessSampler periodically samples this process's own CPU and RSS
// via gopsutil (the teacher's instance_reporter.go/admin.go dependency for
// OS-level metrics) and reports them alongside the acquisition gauges. It
// runs until stop is closed.
func (m *Metrics) StartProcessSampler(interval time.Duration, stop <-chan struct{}) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if pct, err := proc.CPUPercent(); err == nil {
				m.processCPU.Set(pct)
			}
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				m.processRSS.Set(float64(mem.RSS))
			}
		}
	}
}
