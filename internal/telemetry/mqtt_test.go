package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMQTTPublisherDisabledWhenBrokerEmpty(t *testing.T) {
	p, err := NewMQTTPublisher("", "lcmssim", nil)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestGenerateClientIDIsUniqueAndPrefixed(t *testing.T) {
	a := generateClientID()
	b := generateClientID()
	require.NotEqual(t, a, b)
	require.Contains(t, a, "lcmssim_")
}

func TestNilPublisherMethodsAreNoOps(t *testing.T) {
	var p *MQTTPublisher
	require.NotPanics(t, func() {
		p.publishLifecycle("Acquiring", "sess", 10)
		p.PublishRateTelemetry(2.5)
		p.StartRateSampler(func() int64 { return 0 }, time.Millisecond, make(chan struct{}))
		p.Close()
	})
}
