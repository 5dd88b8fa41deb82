package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitrap-sim/lcmssim/internal/control"
)

// upgrader mirrors the teacher's websocket.go: generous buffers for bursty
// spectrum frames and an open CheckOrigin since this is a local simulator,
// not a browser-facing multi-tenant service.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// LagObserver is notified when a stream subscriber's Recv reports a lag
// event, so telemetry can count it without the transport package depending
// on a concrete metrics type.
type LagObserver interface {
	IncBusLag()
}

// wsConn wraps a *websocket.Conn with a write mutex, following the
// teacher's wsConn type in websocket.go: gorilla's Conn is not safe for
// concurrent writers, so every write goes through one mutex-guarded path.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (wc *wsConn) writeJSON(v any) error {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	_ = wc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return wc.conn.WriteJSON(v)
}

func (wc *wsConn) close() error {
	return wc.conn.Close()
}

// WebSocketHandler serves stream_scans over a websocket: each connection
// attaches a new bus.Subscriber and forwards scans as JSON text frames
// until the peer disconnects, per spec §4.4/§4.2.
type WebSocketHandler struct {
	surface *control.Surface
	lag     LagObserver
	log     *slog.Logger
}

// NewWebSocketHandler binds surface to the websocket transport. lag may be
// nil if no telemetry is wired.
func NewWebSocketHandler(surface *control.Surface, lag LagObserver, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{surface: surface, lag: lag, log: logger}
}

// Register attaches the stream_scans route.
func (h *WebSocketHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/stream-scans", h.handleStream)
}

func (h *WebSocketHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	conn := &wsConn{conn: rawConn}
	defer conn.close()

	sub := h.surface.StreamScans(r.Context())
	defer sub.Close()

	// A dedicated reader goroutine is the only way to notice the peer
	// closing the connection with gorilla/websocket; ctx is cancelled the
	// moment that happens so the forwarding loop below can exit.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.watchForDisconnect(conn, cancel)

	h.log.Info("stream_scans subscriber attached", "remote", r.RemoteAddr)
	for {
		scan, lagged, dropped, ok := sub.Recv(ctx)
		if !ok {
			return
		}
		if lagged {
			h.log.Warn("stream_scans subscriber lagged; scans dropped", "remote", r.RemoteAddr, "dropped", dropped)
			if h.lag != nil {
				h.lag.IncBusLag()
			}
		}
		if err := conn.writeJSON(scan); err != nil {
			h.log.Debug("stream_scans write failed, closing", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
}

// watchForDisconnect blocks on ReadMessage (the client sends nothing on
// this stream; any read result, including an error, means the socket
// closed) and cancels ctx so the forwarding loop in handleStream unblocks.
func (h *WebSocketHandler) watchForDisconnect(conn *wsConn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			return
		}
	}
}
