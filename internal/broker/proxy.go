package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"

	"go-creator-hub/internal/model"
	"go-creator-hub/internal/realtime"
)

const conversationTopicPrefix = "/topic/conversation."

var errFrameRejected = errors.New("frame rejected")

// proxy sits between one WebSocket client and the STOMP server. Client
// frames are parsed and checked against the authenticated user; server
// bytes are copied back untouched.
type proxy struct {
	client   net.Conn
	upstream net.Conn
	claims   *model.AuthClaims
	chats    Chats
	logger   *slog.Logger
	metrics  *Metrics

	closeOnce sync.Once
}

func newProxy(client net.Conn, upstream net.Conn, claims *model.AuthClaims, chats Chats, logger *slog.Logger, metrics *Metrics) *proxy {
	return &proxy{
		client:   client,
		upstream: upstream,
		claims:   claims,
		chats:    chats,
		logger:   logger.With("user_id", claims.UserID),
		metrics:  metrics,
	}
}

// run blocks until either side goes away.
func (p *proxy) run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(p.client, p.upstream)
		p.close()
	}()

	p.inbound()
	p.close()
	<-done
}

func (p *proxy) inbound() {
	reader := frame.NewReader(p.client)
	writer := frame.NewWriter(p.upstream)

	for {
		f, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				p.logger.Debug("stomp client read failed", "error", err)
			}
			return
		}

		// nil is a heart-beat
		if f != nil {
			if err := p.check(f); err != nil {
				p.reject(f, err)
				return
			}
		}

		if err := writer.Write(f); err != nil {
			return
		}
	}
}

func (p *proxy) check(f *frame.Frame) error {
	switch f.Command {
	case frame.SEND:
		destination := f.Header.Get(frame.Destination)
		if destination != realtime.ChatSendDestination {
			p.metrics.rejected("send")
			return fmt.Errorf("%w: sending to %q is not allowed", errFrameRejected, destination)
		}
		f.Header.Del(SenderHeader)
		f.Header.Add(SenderHeader, p.claims.UserID)

	case frame.SUBSCRIBE:
		destination := f.Header.Get(frame.Destination)
		if err := p.canSubscribe(destination); err != nil {
			p.metrics.rejected("subscribe")
			return err
		}
	}

	return nil
}

func (p *proxy) canSubscribe(destination string) error {
	if destination == realtime.UserQueue(p.claims.UserID) {
		return nil
	}

	if id, ok := strings.CutPrefix(destination, conversationTopicPrefix); ok && id != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.chats.CanAccess(ctx, p.claims.UserID, id); err != nil {
			return fmt.Errorf("%w: %s: %v", errFrameRejected, destination, err)
		}
		return nil
	}

	return fmt.Errorf("%w: subscribing to %q is not allowed", errFrameRejected, destination)
}

func (p *proxy) reject(f *frame.Frame, cause error) {
	p.logger.Warn("stomp frame rejected", "command", f.Command, "error", cause)

	reply := frame.New(frame.ERROR, frame.Message, "access denied")
	if receipt := f.Header.Get(frame.Receipt); receipt != "" {
		reply.Header.Add(frame.ReceiptId, receipt)
	}
	reply.Body = []byte(cause.Error())

	_ = frame.NewWriter(p.client).Write(reply)
}

func (p *proxy) close() {
	p.closeOnce.Do(func() {
		_ = p.client.Close()
		_ = p.upstream.Close()
	})
}
