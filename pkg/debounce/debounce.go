// Package debounce buffers inbound messages per channel key so that a
// burst of short messages is answered as one turn. Each new message
// resets the window; the buffer flushes only after the sender has been
// quiet for the full window.
package debounce

import (
	"strings"
	"sync"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
)

const component = "debounce"

// Buffered is one inbound message waiting in a buffer. The message has
// already been persisted by the time it gets here.
type Buffered struct {
	ContactID      domain.EntityID
	ConversationID domain.EntityID
	ChannelKey     string
	Text           string
	ExternalID     string
}

// Flush is one combined burst handed to the flush callback.
type Flush struct {
	ChannelKey     string
	ContactID      domain.EntityID
	ConversationID domain.EntityID
	// CombinedText joins the burst's texts with newlines, oldest first.
	CombinedText string
	// ExternalIDs of the buffered messages, for read receipts.
	ExternalIDs []string
	Count       int
}

// FlushFunc receives each flushed burst. It runs on the timer goroutine;
// long work should be handed off.
type FlushFunc func(Flush)

type buffer struct {
	items []Buffered
	timer *time.Timer
}

// Debouncer owns the per-key buffers and their timers.
type Debouncer struct {
	window time.Duration
	flush  FlushFunc
	events domain.EventBus

	mu      sync.Mutex
	buffers map[string]*buffer
}

// New creates a debouncer with the given quiet window.
func New(window time.Duration, flush FlushFunc, events domain.EventBus) *Debouncer {
	return &Debouncer{
		window:  window,
		flush:   flush,
		events:  events,
		buffers: make(map[string]*buffer),
	}
}

// Add appends a message to its channel's buffer and resets the flush timer.
func (d *Debouncer) Add(msg Buffered) {
	d.mu.Lock()
	b, ok := d.buffers[msg.ChannelKey]
	if !ok {
		b = &buffer{}
		d.buffers[msg.ChannelKey] = b
	}
	b.items = append(b.items, msg)
	if b.timer != nil {
		b.timer.Stop()
	}
	key := msg.ChannelKey
	b.timer = time.AfterFunc(d.window, func() { d.flushKey(key) })
	size := len(b.items)
	d.mu.Unlock()

	logger.DebugCF(component, "Message buffered", map[string]interface{}{
		"channel_key": key,
		"buffer_size": size,
	})
	if d.events != nil {
		d.events.Publish(domain.NewEvent(domain.EventMessageBuffered, msg.ConversationID, map[string]interface{}{
			"channel_key": key,
			"buffer_size": size,
		}))
	}
}

// FlushAll flushes every pending buffer immediately, for shutdown.
func (d *Debouncer) FlushAll() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.buffers))
	for k := range d.buffers {
		keys = append(keys, k)
	}
	d.mu.Unlock()
	for _, k := range keys {
		d.flushKey(k)
	}
}

// Pending returns the number of buffers currently waiting.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// flushKey removes the buffer for key and hands its contents to the flush
// callback. Messages arriving after the removal start a fresh buffer.
func (d *Debouncer) flushKey(key string) {
	d.mu.Lock()
	b, ok := d.buffers[key]
	if ok {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(d.buffers, key)
	}
	d.mu.Unlock()

	if !ok || len(b.items) == 0 {
		return
	}

	texts := make([]string, 0, len(b.items))
	externalIDs := make([]string, 0, len(b.items))
	for _, item := range b.items {
		texts = append(texts, item.Text)
		if item.ExternalID != "" {
			externalIDs = append(externalIDs, item.ExternalID)
		}
	}
	first := b.items[0]

	f := Flush{
		ChannelKey:     key,
		ContactID:      first.ContactID,
		ConversationID: first.ConversationID,
		CombinedText:   strings.Join(texts, "\n"),
		ExternalIDs:    externalIDs,
		Count:          len(b.items),
	}

	logger.DebugCF(component, "Buffer flushed", map[string]interface{}{
		"channel_key": key,
		"messages":    f.Count,
	})
	if d.events != nil {
		d.events.Publish(domain.NewEvent(domain.EventBufferFlushed, first.ConversationID, map[string]interface{}{
			"channel_key": key,
			"messages":    f.Count,
		}))
	}

	d.flush(f)
}
