//go:build !(rp2040 || rp2350)

// bridge/ws.go
package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// The websocket transport exists for host builds: the simulator and any
// monitoring tool speak the same framed protocol over a socket instead of
// a UART.

func init() {
	RegisterTransport("ws", newWSTransport)
}

func newWSTransport(cfg TransportConfig) (Transport, error) {
	w := cfg.WS
	if w == nil {
		return nil, errors.New("ws transport requires ws config")
	}
	switch {
	case w.ListenAddr != "":
		return &wsListener{cfg: *w, conns: make(chan *websocket.Conn)}, nil
	case w.URL != "":
		return &wsDialer{cfg: *w}, nil
	default:
		return nil, errors.New("ws transport requires url or listen_addr")
	}
}

// -----------------------------------------------------------------------------
// Dialler
// -----------------------------------------------------------------------------

type wsDialer struct {
	cfg WSConfig
}

func (t *wsDialer) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	d := websocket.Dialer{}
	if t.cfg.HandshakeTimeoutMS > 0 {
		d.HandshakeTimeout = time.Duration(t.cfg.HandshakeTimeoutMS) * time.Millisecond
	}
	c, _, err := d.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

func (t *wsDialer) String() string { return "ws" }

// -----------------------------------------------------------------------------
// Listener
// -----------------------------------------------------------------------------

// wsListener accepts one peer at a time: Open blocks until a client
// connects, and the next client waits until the supervisor opens again.
type wsListener struct {
	cfg   WSConfig
	once  sync.Once
	err   error
	conns chan *websocket.Conn
}

func (t *wsListener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	t.once.Do(func() { t.err = t.start() })
	if t.err != nil {
		return nil, t.err
	}
	select {
	case c := <-t.conns:
		return &wsConn{c: c}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *wsListener) start() error {
	ln, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return err
	}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case t.conns <- c:
		case <-r.Context().Done():
			_ = c.Close()
		}
	})
	// The listener lives for the process; Transport has no Close and a
	// reconfigured bridge simply stops opening links.
	go func() { _ = http.Serve(ln, mux) }()
	return nil
}

func (t *wsListener) String() string { return "ws-listen" }

// -----------------------------------------------------------------------------
// Stream adapter
// -----------------------------------------------------------------------------

// wsConn flattens websocket messages into a byte stream for the framer.
type wsConn struct {
	c *websocket.Conn
	r io.Reader
}

func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			_, r, err := w.c.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error { return w.c.Close() }
