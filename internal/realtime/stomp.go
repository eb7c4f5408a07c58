package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	gorilla "github.com/gorilla/websocket"

	"go-creator-hub/internal/websocket"
)

// StompSubprotocol is negotiated on the WebSocket upgrade.
const StompSubprotocol = "v12.stomp"

const disconnectTimeout = 2 * time.Second

// StompDialer opens STOMP sessions over a WebSocket. The bearer token is sent
// both on the upgrade request and in the CONNECT frame.
type StompDialer struct {
	URL       string
	Host      string
	HeartBeat time.Duration
	Dialer    *gorilla.Dialer
	Logger    *slog.Logger
}

func (d *StompDialer) Dial(ctx context.Context, token string) (Transport, error) {
	dialer := gorilla.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	if d.Dialer != nil {
		dialer = *d.Dialer
	}
	dialer.Subprotocols = []string{StompSubprotocol}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket upgrade %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}

	conn := websocket.NewConn(ws)
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(d.host()),
		stomp.ConnOpt.HeartBeat(d.HeartBeat, d.HeartBeat),
	}
	if token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+token))
	}

	session, err := stomp.Connect(conn, opts...)
	if !stop() || err != nil {
		_ = conn.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &stompTransport{session: session, conn: conn, logger: logger}, nil
}

func (d *StompDialer) host() string {
	if d.Host != "" {
		return d.Host
	}
	host := d.URL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	return host
}

type stompTransport struct {
	session *stomp.Conn
	conn    *websocket.Conn
	logger  *slog.Logger
}

func (t *stompTransport) Subscribe(destination string, deliver func(Frame)) (LiveSubscription, error) {
	sub, err := t.session.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("stomp subscribe %s: %w", destination, err)
	}

	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				t.logger.Debug("stomp subscription ended", "destination", destination, "error", msg.Err)
				return
			}
			deliver(Frame{
				Destination: msg.Destination,
				Headers:     frameHeaders(msg),
				Body:        msg.Body,
			})
		}
	}()

	return &stompSubscription{sub: sub, logger: t.logger}, nil
}

func (t *stompTransport) Send(destination string, body []byte, headers map[string]string) error {
	contentType := headers["content-type"]

	sendOpts := make([]func(*frame.Frame) error, 0, len(headers))
	for k, v := range headers {
		if k == "content-type" {
			continue
		}
		sendOpts = append(sendOpts, stomp.SendOpt.Header(k, v))
	}

	if err := t.session.Send(destination, contentType, body, sendOpts...); err != nil {
		return fmt.Errorf("stomp send: %w", err)
	}
	return nil
}

func (t *stompTransport) Done() <-chan struct{} {
	return t.conn.Done()
}

func (t *stompTransport) Close() error {
	select {
	case <-t.conn.Done():
		return closeConn(t.conn)
	default:
	}

	done := make(chan error, 1)
	go func() { done <- t.session.Disconnect() }()

	select {
	case err := <-done:
		if err != nil {
			t.logger.Debug("stomp disconnect", "error", err)
		}
	case <-time.After(disconnectTimeout):
		t.logger.Debug("stomp disconnect timed out")
	}

	// Disconnect closes the connection itself once the server acknowledges.
	return closeConn(t.conn)
}

func closeConn(conn io.Closer) error {
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

type stompSubscription struct {
	sub    *stomp.Subscription
	logger *slog.Logger
}

func (s *stompSubscription) ID() string {
	return s.sub.Id()
}

// Unsubscribe returns immediately. The UNSUBSCRIBE round trip can block on
// the reader that is delivering the current message.
func (s *stompSubscription) Unsubscribe() error {
	go func() {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Debug("stomp unsubscribe", "destination", s.sub.Destination(), "error", err)
		}
	}()
	return nil
}

func frameHeaders(msg *stomp.Message) map[string]string {
	if msg.Header == nil {
		return nil
	}
	headers := make(map[string]string, msg.Header.Len())
	for i := 0; i < msg.Header.Len(); i++ {
		k, v := msg.Header.GetAt(i)
		if _, seen := headers[k]; !seen {
			headers[k] = v
		}
	}
	return headers
}
