package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/orbitrap-sim/lcmssim/internal/engine"
)

// LifecycleEvent mirrors the acquisition states worth "phoning home" about;
// Idle/Paused/Faulted carry no externally interesting transition today.
type LifecycleEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	ScanCount int64  `json:"scan_count"`
	Timestamp int64  `json:"timestamp_ms"`
}

// MQTTPublisher emits acquisition lifecycle events and periodic scan-rate
// telemetry to a configurable broker, mirroring the teacher's own
// mqtt_publisher.go (paho client, auto-reconnect, async publish with a
// background token wait).
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
	log         *slog.Logger
}

// NewMQTTPublisher connects to broker and returns a publisher, or nil if
// broker is empty (MQTT telemetry is disabled unless --mqtt-broker is set).
func NewMQTTPublisher(broker, topicPrefix string, logger *slog.Logger) (*MQTTPublisher, error) {
	if broker == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(generateClientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", broker, token.Error())
	}

	return &MQTTPublisher{client: client, topicPrefix: topicPrefix, log: logger}, nil
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "lcmssim_" + hex.EncodeToString(b)
}

// EngineHooks returns an engine.Hooks whose OnStateChange publishes a
// lifecycle event for every acquisition state transition.
func (p *MQTTPublisher) EngineHooks(sessionID func() string, scanCount func() int64) engine.Hooks {
	return engine.Hooks{
		OnStateChange: func(s engine.State) {
			p.publishLifecycle(s.String(), sessionID(), scanCount())
		},
	}
}

func (p *MQTTPublisher) publishLifecycle(event, sessionID string, scanCount int64) {
	if p == nil || !p.client.IsConnected() {
		return
	}

	msg := LifecycleEvent{
		Event:     event,
		SessionID: sessionID,
		ScanCount: scanCount,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("marshal lifecycle event failed", "err", err)
		return
	}

	topic := fmt.Sprintf("%s/acquisition/lifecycle", p.topicPrefix)
	token := p.client.Publish(topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Error("mqtt publish failed", "topic", topic, "err", token.Error())
		}
	}()
}

// PublishRateTelemetry emits a periodic scan-rate sample; callers drive this
// from a ticker alongside the producer's own tick.
func (p *MQTTPublisher) PublishRateTelemetry(scansPerSecond float64) {
	if p == nil || !p.client.IsConnected() {
		return
	}

	payload := map[string]any{
		"scans_per_second": scansPerSecond,
		"timestamp_ms":     time.Now().UnixMilli(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	topic := fmt.Sprintf("%s/acquisition/rate", p.topicPrefix)
	token := p.client.Publish(topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Error("mqtt publish failed", "topic", topic, "err", token.Error())
		}
	}()
}

// StartRateSampler periodically diffs scanCount() across interval and
// publishes the resulting scans/s via PublishRateTelemetry. It runs until
// stop is closed. Safe to call on a nil publisher (returns immediately,
// same as every other MQTTPublisher method).
func (p *MQTTPublisher) StartRateSampler(scanCount func() int64, interval time.Duration, stop <-chan struct{}) {
	if p == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := scanCount()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current := scanCount()
			p.PublishRateTelemetry(float64(current-last) / interval.Seconds())
			last = current
		}
	}
}

// Close disconnects the MQTT client. Safe to call on a nil publisher.
func (p *MQTTPublisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
}
