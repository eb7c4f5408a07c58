package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 5 * time.Second
)

var (
	ErrNotConnected     = errors.New("realtime channel is not connected")
	ErrEmptyDestination = errors.New("destination is empty")
	ErrNilHandler       = errors.New("handler is nil")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Handler func(Message)

type Options struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Logger               *slog.Logger
	Metrics              *Metrics
}

// subscription is the durable intent to receive a destination. It outlives
// transports; live is only set while the current transport carries it.
type subscription struct {
	id          string
	destination string
	handler     Handler

	live   LiveSubscription
	arming bool
	// armID tags the transport subscription whose deliveries are accepted.
	armID uint64
}

// Channel is a reconnecting publish/subscribe client. Subscriptions are kept
// as a list of intents and replayed every time a transport connects.
type Channel struct {
	dialer      Dialer
	tokens      TokenSource
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
	metrics     *Metrics

	mu         sync.Mutex
	state      State
	changed    chan struct{}
	transport  Transport
	subs       map[string]*subscription
	attempts   int
	gen        uint64
	nextArm    uint64
	timer      *time.Timer
	cancelDial context.CancelFunc
}

func NewChannel(dialer Dialer, tokens TokenSource, opts Options) *Channel {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Channel{
		dialer:      dialer,
		tokens:      tokens,
		maxAttempts: opts.MaxReconnectAttempts,
		delay:       opts.ReconnectDelay,
		logger:      opts.Logger.With("component", "realtime"),
		metrics:     opts.Metrics,
		changed:     make(chan struct{}),
		subs:        map[string]*subscription{},
	}
	c.metrics.setState(StateDisconnected)

	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AwaitConnected blocks until the channel is connected or ctx ends. It does
// not start a connection by itself.
func (c *Channel) AwaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.state == StateConnected {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Connect starts connecting when disconnected and resets the reconnect
// budget. It returns immediately.
func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected {
		return
	}
	c.attempts = 0
	c.startConnectLocked()
}

// Disconnect closes the transport, forgets every subscription and cancels
// any pending reconnect. The channel stays disconnected until Connect.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	t := c.transport
	c.transport = nil
	c.subs = map[string]*subscription{}
	c.attempts = 0
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if t == nil {
		return nil
	}

	c.logger.Info("realtime channel disconnected")
	if err := t.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Subscribe registers handler for destination and returns the subscription
// identity. Subscribing again to the same destination swaps the handler and
// returns the same identity. When disconnected it starts connecting; the
// subscription is armed once connected.
func (c *Channel) Subscribe(destination string, handler Handler) (string, error) {
	if destination == "" {
		return "", ErrEmptyDestination
	}
	if handler == nil {
		return "", ErrNilHandler
	}

	c.mu.Lock()
	rec, exists := c.subs[destination]
	if exists {
		rec.handler = handler
	} else {
		rec = &subscription{id: uuid.NewString(), destination: destination, handler: handler}
		c.subs[destination] = rec
	}
	id := rec.id

	switch c.state {
	case StateDisconnected:
		c.attempts = 0
		c.startConnectLocked()
		c.mu.Unlock()
	case StateConnected:
		t, gen := c.transport, c.gen
		armID, ok := c.prepareArmLocked(rec)
		c.mu.Unlock()
		if ok {
			c.arm(gen, t, rec, armID)
		}
	default:
		// The replay on connect picks it up.
		c.mu.Unlock()
	}

	return id, nil
}

// Unsubscribe forgets destination. Unknown destinations are ignored.
func (c *Channel) Unsubscribe(destination string) {
	c.mu.Lock()
	rec, ok := c.subs[destination]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, destination)
	live := rec.live
	rec.live = nil
	rec.armID = 0
	c.mu.Unlock()

	if live == nil {
		return
	}
	if err := live.Unsubscribe(); err != nil {
		c.logger.Warn("realtime unsubscribe failed", "destination", destination, "error", err)
	}
}

// Send publishes payload to destination. Nothing is buffered: when the
// channel is not connected the call fails with ErrNotConnected.
func (c *Channel) Send(destination string, payload any) error {
	if destination == "" {
		return ErrEmptyDestination
	}

	body, contentType, err := encodePayload(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	t := c.transport
	connected := c.state == StateConnected && t != nil
	c.mu.Unlock()

	if !connected {
		c.metrics.sendFailed()
		c.logger.Warn("realtime send while not connected", "destination", destination)
		return ErrNotConnected
	}

	if err := t.Send(destination, body, map[string]string{"content-type": contentType}); err != nil {
		c.metrics.sendFailed()
		c.logger.Warn("realtime send failed", "destination", destination, "error", err)
		return fmt.Errorf("send to %s: %w", destination, err)
	}

	return nil
}

// LiveSubscriptionID reports the transport subscription id currently
// carrying destination.
func (c *Channel) LiveSubscriptionID(destination string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.subs[destination]
	if !ok || rec.live == nil {
		return "", false
	}
	return rec.live.ID(), true
}

func (c *Channel) Destinations() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.subs))
	for dest := range c.subs {
		out = append(out, dest)
	}
	c.mu.Unlock()

	sort.Strings(out)
	return out
}

func (c *Channel) startConnectLocked() {
	c.stopTimerLocked()
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.setStateLocked(StateConnecting)

	var token string
	if c.tokens != nil {
		token, _ = c.tokens.Token()
	}

	go c.dial(ctx, cancel, gen, token)
}

func (c *Channel) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, token string) {
	defer cancel()

	t, err := c.dialer.Dial(ctx, token)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		c.metrics.connectAttempt(false)
		c.logger.Warn("realtime connect failed", "attempt", c.attempts, "error", err)
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.metrics.connectAttempt(true)
	c.transport = t
	c.attempts = 0
	c.setStateLocked(StateConnected)

	// Snapshot before replaying so unsubscribes during the replay cannot
	// disturb the iteration.
	type pendingArm struct {
		rec   *subscription
		armID uint64
	}
	pending := make([]pendingArm, 0, len(c.subs))
	for _, rec := range c.subs {
		if armID, ok := c.prepareArmLocked(rec); ok {
			pending = append(pending, pendingArm{rec: rec, armID: armID})
		}
	}
	c.mu.Unlock()

	c.logger.Info("realtime channel connected", "subscriptions", len(pending))
	go c.watch(gen, t)

	for _, p := range pending {
		c.arm(gen, t, p.rec, p.armID)
	}
}

func (c *Channel) watch(gen uint64, t Transport) {
	<-t.Done()

	c.mu.Lock()
	if gen != c.gen || c.transport != t {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	for _, rec := range c.subs {
		rec.live = nil
		rec.arming = false
		rec.armID = 0
	}
	c.setStateLocked(StateDisconnected)
	c.logger.Warn("realtime connection lost")
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	_ = t.Close()
}

func (c *Channel) scheduleReconnectLocked() {
	if c.attempts >= c.maxAttempts {
		c.metrics.reconnectExhausted()
		c.logger.Error("realtime reconnect attempts exhausted; call Connect to retry", "attempts", c.attempts)
		return
	}

	c.attempts++
	gen := c.gen
	c.logger.Info("realtime reconnect scheduled", "attempt", c.attempts, "max_attempts", c.maxAttempts, "delay", c.delay)
	c.timer = time.AfterFunc(c.delay, func() { c.reconnect(gen) })
}

func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != StateDisconnected {
		return
	}
	c.timer = nil
	c.startConnectLocked()
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) prepareArmLocked(rec *subscription) (uint64, bool) {
	if rec.live != nil || rec.arming {
		return 0, false
	}
	c.nextArm++
	rec.arming = true
	rec.armID = c.nextArm
	return rec.armID, true
}

func (c *Channel) arm(gen uint64, t Transport, rec *subscription, armID uint64) {
	live, err := t.Subscribe(rec.destination, c.deliverer(rec, armID))

	c.mu.Lock()
	current := rec.armID == armID
	if current {
		rec.arming = false
	}
	stale := !current || gen != c.gen || c.subs[rec.destination] != rec

	if err != nil {
		if current {
			rec.armID = 0
		}
		c.mu.Unlock()
		c.logger.Warn("realtime subscribe failed", "destination", rec.destination, "error", err)
		return
	}
	if stale {
		c.mu.Unlock()
		_ = live.Unsubscribe()
		return
	}
	rec.live = live
	c.mu.Unlock()

	c.logger.Debug("realtime subscription armed", "destination", rec.destination, "subscription_id", live.ID())
}

func (c *Channel) deliverer(rec *subscription, armID uint64) func(Frame) {
	return func(f Frame) {
		c.mu.Lock()
		accepted := rec.armID == armID && c.subs[rec.destination] == rec
		handler := rec.handler
		c.mu.Unlock()

		if !accepted {
			return
		}

		msg := decodeFrame(rec.destination, f)
		c.metrics.messageReceived(msg.Parsed)
		if !msg.Parsed {
			c.logger.Debug("realtime message is not JSON; delivering raw body", "destination", msg.Destination)
		}
		handler(msg)
	}
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
	c.metrics.setState(s)
}
