package natsc

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a websocket connection to net.Conn so the rest of the
// client treats it as a plain byte stream. The server frames protocol
// bytes as binary messages at arbitrary boundaries, which the
// incremental parser already tolerates.
type wsConn struct {
	c *websocket.Conn
	r io.Reader
}

// WebSocketDialer forces WebSocket transport regardless of the server
// URL scheme. Install it with WithDialer.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Secure           bool
}

func (d *WebSocketDialer) Dial(network, address string) (net.Conn, error) {
	u := &url.URL{Scheme: "ws", Host: address}
	if d.Secure {
		u.Scheme = "wss"
	}
	return wsDial(u, d.HandshakeTimeout)
}

func wsDial(u *url.URL, timeout time.Duration) (net.Conn, error) {
	d := websocket.Dialer{
		HandshakeTimeout: timeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	wc, resp, err := d.Dial(u.String(), nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("natsc: websocket dial: %w", err)
	}
	return &wsConn{c: wc}, nil
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
			if n == 0 {
				continue
			}
			err = nil
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

func (w *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, _EMPTY)
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.c.Close()
}

func (w *wsConn) LocalAddr() net.Addr  { return w.c.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr { return w.c.RemoteAddr() }

func (w *wsConn) SetDeadline(t time.Time) error {
	if err := w.c.SetReadDeadline(t); err != nil {
		return err
	}
	return w.c.SetWriteDeadline(t)
}

func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.c.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.c.SetWriteDeadline(t) }
