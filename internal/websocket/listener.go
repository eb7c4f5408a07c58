package websocket

import (
	"net"
	"sync"
)

// Listener is a net.Listener whose connections are handed in by HTTP
// upgrade handlers instead of being accepted from a socket.
type Listener struct {
	addr  net.Addr
	conns chan net.Conn

	done      chan struct{}
	closeOnce sync.Once
}

var _ net.Listener = (*Listener)(nil)

func NewListener(addr net.Addr) *Listener {
	return &Listener{
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// Offer blocks until the connection is accepted or the listener closes.
func (l *Listener) Offer(conn net.Conn) error {
	select {
	case l.conns <- conn:
		return nil
	case <-l.done:
		return net.ErrClosed
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}
