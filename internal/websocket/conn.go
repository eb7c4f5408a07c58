package websocket

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// Conn exposes a WebSocket as a byte stream so STOMP can run over it. Every
// Write becomes one text message; reads span message boundaries.
type Conn struct {
	ws *gorilla.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	shutOnce sync.Once
	shutErr  error
}

var _ net.Conn = (*Conn)(nil)

func NewConn(ws *gorilla.Conn) *Conn {
	return &Conn{ws: ws, done: make(chan struct{})}
}

func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.ws.NextReader()
			if err != nil {
				c.markDone()
				if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != gorilla.TextMessage && messageType != gorilla.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(gorilla.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close is idempotent; only the first call reports an error.
func (c *Conn) Close() error {
	c.markDone()

	c.shutOnce.Do(func() {
		_ = c.ws.WriteControl(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second))

		if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.shutErr = err
		}
	})
	return c.shutErr
}

// Done is closed once the connection has failed or been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}
