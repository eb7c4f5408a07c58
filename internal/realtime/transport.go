package realtime

import "context"

// Frame is one inbound broker message.
type Frame struct {
	Destination string
	Headers     map[string]string
	Body        []byte
}

// Dialer opens a live transport connection. token is the bearer credential
// read from the session at connect time; empty means anonymous.
type Dialer interface {
	Dial(ctx context.Context, token string) (Transport, error)
}

// Transport is one live broker connection. It is discarded after it drops.
type Transport interface {
	Subscribe(destination string, deliver func(Frame)) (LiveSubscription, error)
	Send(destination string, body []byte, headers map[string]string) error
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	Close() error
}

type LiveSubscription interface {
	ID() string
	Unsubscribe() error
}

// TokenSource supplies the bearer token; *session.Store satisfies it.
type TokenSource interface {
	Token() (string, bool)
}
