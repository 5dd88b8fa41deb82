package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"
)

// NewListener opens the control-surface listener on addr. When reusePort is
// set it installs SO_REUSEPORT via a ListenConfig.Control callback, ported
// near-verbatim from the teacher's own setupStatusListener (spectrum.go),
// which lets several simulator instances share one port for load-testing
// many downstream clients at once. When maxConns is positive the listener
// is wrapped with golang.org/x/net/netutil.LimitListener, capping total
// concurrent accepted connections — the practical equivalent of bounding
// concurrent stream_scans subscribers, since the JSON control endpoints are
// short-lived requests and the websocket stream is what actually holds a
// connection open.
func NewListener(addr string, reusePort bool, maxConns int) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		}
	}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}
