package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

type fakeDialer struct {
	mu         sync.Mutex
	fail       bool
	tokens     []string
	transports []*fakeTransport
	dials      atomic.Int32
	// gate, when set, blocks each dial until a value is received.
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Transport, error) {
	d.dials.Add(1)

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tokens = append(d.tokens, token)
	if d.fail {
		return nil, errors.New("connection refused")
	}

	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) seenTokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

type sentFrame struct {
	destination string
	body        []byte
	headers     map[string]string
}

type fakeTransport struct {
	mu      sync.Mutex
	subs    map[string]*fakeSub
	nextID  int
	sent    []sentFrame
	sendErr error
	closed  bool

	done     chan struct{}
	doneOnce sync.Once
}

type fakeSub struct {
	t           *fakeTransport
	id          string
	destination string
	deliver     func(Frame)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: map[string]*fakeSub{}, done: make(chan struct{})}
}

func (t *fakeTransport) Subscribe(destination string, deliver func(Frame)) (LiveSubscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	s := &fakeSub{t: t, id: fmt.Sprintf("sub-%d", t.nextID), destination: destination, deliver: deliver}
	t.subs[s.id] = s
	return s, nil
}

func (t *fakeTransport) Send(destination string, body []byte, headers map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, sentFrame{destination: destination, body: body, headers: headers})
	return nil
}

func (t *fakeTransport) Done() <-chan struct{} {
	return t.done
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.drop()
	return nil
}

// drop simulates the connection being lost.
func (t *fakeTransport) drop() {
	t.doneOnce.Do(func() { close(t.done) })
}

// publish delivers body to every live subscription on destination.
func (t *fakeTransport) publish(destination string, body string) {
	t.mu.Lock()
	var targets []func(Frame)
	for _, s := range t.subs {
		if s.destination == destination {
			targets = append(targets, s.deliver)
		}
	}
	t.mu.Unlock()

	for _, deliver := range targets {
		deliver(Frame{Destination: destination, Body: []byte(body)})
	}
}

func (t *fakeTransport) liveCount(destination string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, s := range t.subs {
		if s.destination == destination {
			n++
		}
	}
	return n
}

func (t *fakeTransport) sentFrames() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentFrame(nil), t.sent...)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (s *fakeSub) ID() string {
	return s.id
}

func (s *fakeSub) Unsubscribe() error {
	s.t.mu.Lock()
	delete(s.t.subs, s.id)
	s.t.mu.Unlock()
	return nil
}

type staticToken string

func (s staticToken) Token() (string, bool) {
	return string(s), s != ""
}
