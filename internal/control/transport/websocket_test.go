package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/orbitrap-sim/lcmssim/internal/control"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

type noopLagObserver struct{ count int }

func (n *noopLagObserver) IncBusLag() { n.count++ }

func TestWebSocketStreamsScans(t *testing.T) {
	surface := newTestSurface(t)
	lag := &noopLagObserver{}
	h := NewWebSocketHandler(surface, lag, testLogger())

	mux := http.NewServeMux()
	h.Register(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream-scans"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	params := spectrum.DefaultParams()
	params.ScanRate = 50
	resp := surface.StartAcquisition(t.Context(), control.StartRequest{Simulation: &params})
	require.True(t, resp.Success)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var scan spectrum.Scan
	require.NoError(t, conn.ReadJSON(&scan))
	require.Greater(t, scan.ScanNumber, int32(0))

	surface.StopAcquisition(t.Context())
}
