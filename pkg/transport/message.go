package transport

import (
	"context"
	"sync"
)

// MessageHandler is called for each inbound message on a Channel.
// Handlers run on the channel's read goroutine and should return quickly.
// The data slice is owned by the handler.
type MessageHandler func(data []byte)

// Channel is a bidirectional publish/subscribe message pipe.
type Channel interface {
	// Publish sends one message to the remote peer. It is fire-and-forget:
	// a nil error means the message was handed to the underlying transport,
	// not that the peer processed it.
	Publish(msg []byte) error

	// OnMessage registers the handler for inbound messages, replacing any
	// previous one. Network channels hold messages that arrive before the
	// first handler is set; messages arriving after the handler is cleared
	// are dropped.
	OnMessage(handler MessageHandler)
}

// Transport is the result of an acquisition step.
type Transport interface {
	// Kind discriminates the transport. Only KindData carries render hints.
	Kind() Kind

	// Channel returns the publish/subscribe channel of this transport.
	Channel() (Channel, error)
}

// Acquirer asynchronously resolves the transport bound to a subscriber
// context. Implementations should honour ctx cancellation.
type Acquirer func(ctx context.Context, subscriberContextID string) (Transport, error)

// staticTransport is a Transport around an existing channel.
type staticTransport struct {
	kind Kind
	ch   Channel
}

func (s *staticTransport) Kind() Kind { return s.kind }

func (s *staticTransport) Channel() (Channel, error) {
	if s.ch == nil {
		return nil, ErrNoChannel
	}
	return s.ch, nil
}

// Static returns a Transport of the given kind wrapping ch.
func Static(kind Kind, ch Channel) Transport {
	return &staticTransport{kind: kind, ch: ch}
}

// StaticAcquirer returns an Acquirer that resolves to t immediately.
func StaticAcquirer(t Transport) Acquirer {
	return func(ctx context.Context, _ string) (Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return t, nil
	}
}

// maxHeldMessages bounds the messages an inbox holds before its first handler
// is set. Later messages are dropped.
const maxHeldMessages = 64

// inbox dispatches inbound messages to the current handler, one at a time.
// No lock is held while a handler runs, so a handler may replace or clear
// its own registration.
type inbox struct {
	mu       sync.Mutex
	handler  MessageHandler
	attached bool
	held     [][]byte
	queue    [][]byte
	draining bool
}

// set replaces the handler. The first non-nil handler receives the held
// messages in arrival order. They are delivered before set returns unless
// another goroutine is already delivering.
func (b *inbox) set(handler MessageHandler) {
	b.mu.Lock()
	b.handler = handler
	if handler != nil && !b.attached {
		b.attached = true
		b.queue = append(b.held, b.queue...)
		b.held = nil
	}
	b.drainLocked()
}

// push delivers data to the handler, or holds it if none was set yet.
func (b *inbox) push(data []byte) {
	b.mu.Lock()
	if !b.attached {
		if len(b.held) < maxHeldMessages {
			b.held = append(b.held, data)
		}
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, data)
	b.drainLocked()
}

// drainLocked delivers queued messages unless a delivery is already running.
// It is called with mu held and returns with mu released.
func (b *inbox) drainLocked() {
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true

	for len(b.queue) > 0 {
		data := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		handler := b.handler
		b.mu.Unlock()

		if handler != nil {
			handler(data)
		}

		b.mu.Lock()
	}

	b.draining = false
	b.mu.Unlock()
}
