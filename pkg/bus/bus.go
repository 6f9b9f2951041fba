// Package bus carries raw inbound message events from the transport
// adapters to the orchestration core. Transports publish without blocking;
// the dispatcher is the single consumer.
package bus

import (
	"context"
	"sync"
)

// MessageBus is a buffered, non-blocking conduit for inbound messages.
// When the buffer is full the oldest message is dropped in favor of the
// newest; a stalled consumer must not wedge the transport callbacks.
type MessageBus struct {
	inbound   chan InboundMessage
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New creates a message bus with the given buffer size.
func New(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = 100
	}
	return &MessageBus{
		inbound: make(chan InboundMessage, buffer),
	}
}

// PublishInbound enqueues a message for the dispatcher. Never blocks.
func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return
	}
	mb.mu.RUnlock()

	select {
	case mb.inbound <- msg:
	default:
		// Channel full — drop oldest and retry
		select {
		case <-mb.inbound:
		default:
		}
		select {
		case mb.inbound <- msg:
		default:
		}
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
// The second return value is false when the context was canceled.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Close shuts the bus down. Publishes after Close are dropped.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		mb.mu.Unlock()
	})
}
