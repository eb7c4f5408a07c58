package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	gorilla "github.com/gorilla/websocket"

	"go-creator-hub/internal/event"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/realtime"
	"go-creator-hub/internal/websocket"
)

// SenderHeader carries the authenticated sender on frames relayed to the
// internal consumer. Client supplied values are overwritten.
const SenderHeader = "x-sender-id"

type TokenValidator interface {
	ValidateToken(token string) (*model.AuthClaims, error)
}

// Chats is the chat service surface the broker needs.
type Chats interface {
	CanAccess(ctx context.Context, userID string, conversationID string) error
	Send(ctx context.Context, senderID string, out model.OutgoingMessage) (model.Message, error)
}

type Options struct {
	Auth      TokenValidator
	Chats     Chats
	Bus       event.Bus
	HeartBeat time.Duration
	Logger    *slog.Logger
	Metrics   *Metrics
	// AllowedOrigins limits browser upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Broker serves STOMP over WebSocket. Each upgraded connection is checked
// frame by frame before it reaches the in-process STOMP server.
type Broker struct {
	opts     Options
	logger   *slog.Logger
	listener *websocket.Listener
	server   *server.Server
	upgrader gorilla.Upgrader

	internal *stomp.Conn
	hub      *Hub
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	mu        sync.Mutex
	sessions  map[*proxy]struct{}
	closed    bool
	closeOnce sync.Once
}

func New(opts Options) *Broker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "broker")

	b := &Broker{
		opts:     opts,
		logger:   logger,
		listener: websocket.NewListener(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}),
		sessions: map[*proxy]struct{}{},
	}
	b.server = &server.Server{
		HeartBeat: opts.HeartBeat,
		Log:       stompLogger{logger: logger},
	}
	b.upgrader = gorilla.Upgrader{
		Subprotocols:    []string{realtime.StompSubprotocol},
		CheckOrigin:     b.checkOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	return b
}

// Start runs the STOMP server and attaches the internal client that
// consumes chat sends and relays bus events.
func (b *Broker) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	// Serve only returns on setup failure; closing the listener stops accepts.
	go func() {
		if err := b.server.Serve(b.listener); err != nil && !errors.Is(err, net.ErrClosed) {
			b.logger.Error("stomp server stopped", "error", err)
		}
	}()

	local, remote := net.Pipe()
	go func() {
		if err := b.listener.Offer(remote); err != nil {
			_ = remote.Close()
		}
	}()

	conn, err := stomp.Connect(local,
		stomp.ConnOpt.Host("devserver"),
		stomp.ConnOpt.HeartBeat(b.opts.HeartBeat, b.opts.HeartBeat),
	)
	if err != nil {
		b.cancel()
		_ = b.listener.Close()
		return fmt.Errorf("connect internal stomp client: %w", err)
	}
	b.internal = conn

	sub, err := conn.Subscribe(realtime.ChatSendDestination, stomp.AckAuto)
	if err != nil {
		b.cancel()
		_ = conn.MustDisconnect()
		_ = b.listener.Close()
		return fmt.Errorf("subscribe %s: %w", realtime.ChatSendDestination, err)
	}

	consumer := &consumer{chats: b.opts.Chats, logger: b.logger, metrics: b.opts.Metrics}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		consumer.run(ctx, sub)
	}()

	b.hub = NewHub(b.opts.Bus, conn, b.logger, b.opts.Metrics)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.hub.Run(ctx)
	}()

	b.logger.Info("stomp broker started", "heartbeat", b.opts.HeartBeat)
	return nil
}

// ServeHTTP upgrades an authenticated request to a STOMP session. The token
// comes from the Authorization header or, for browsers, the access_token
// query parameter.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	claims, err := b.opts.Auth.ValidateToken(token)
	if err != nil {
		b.opts.Metrics.rejected("auth")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	clientSide, serverSide := net.Pipe()
	p := newProxy(websocket.NewConn(ws), clientSide, claims, b.opts.Chats, b.logger, b.opts.Metrics)

	if !b.track(p) {
		p.close()
		return
	}

	if err := b.listener.Offer(serverSide); err != nil {
		b.untrack(p)
		p.close()
		return
	}

	b.opts.Metrics.connected()
	b.logger.Info("stomp session opened", "user_id", claims.UserID)

	go func() {
		p.run()
		b.untrack(p)
		b.opts.Metrics.disconnected()
		b.logger.Info("stomp session closed", "user_id", claims.UserID)
	}()
}

// Sessions reports the number of open client sessions.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		sessions := make([]*proxy, 0, len(b.sessions))
		for p := range b.sessions {
			sessions = append(sessions, p)
		}
		b.mu.Unlock()

		for _, p := range sessions {
			p.close()
		}

		if b.cancel != nil {
			b.cancel()
		}
		if b.hub != nil {
			b.hub.Stop()
		}
		if b.internal != nil {
			_ = b.internal.MustDisconnect()
		}
		_ = b.listener.Close()
		b.wg.Wait()
	})
	return nil
}

func (b *Broker) track(p *proxy) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.sessions[p] = struct{}{}
	return true
}

func (b *Broker) untrack(p *proxy) {
	b.mu.Lock()
	delete(b.sessions, p)
	b.mu.Unlock()
}

func (b *Broker) checkOrigin(r *http.Request) bool {
	if len(b.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range b.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
