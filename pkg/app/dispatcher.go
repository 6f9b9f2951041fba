package app

import (
	"context"
	"time"

	"github.com/kimy-labs/kimy/pkg/bus"
	"github.com/kimy-labs/kimy/pkg/debounce"
	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/personality"
	"github.com/kimy-labs/kimy/pkg/randx"
	"github.com/kimy-labs/kimy/pkg/scheduler"
)

const component = "dispatcher"

// flushTimeout bounds the work done for one flushed burst.
const flushTimeout = 30 * time.Second

// Read receipts land a few seconds after the burst, like a person
// glancing at the phone.
const (
	readReceiptMinDelayMs = 2000
	readReceiptMaxDelayMs = 15000
)

// Dispatcher is the single consumer of the inbound bus. Every message is
// persisted write-through before it enters the debounce buffer, so a crash
// between receipt and flush loses nothing.
type Dispatcher struct {
	bus           *bus.MessageBus
	contacts      domain.ContactRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	debouncer     *debounce.Debouncer
	engine        *personality.Engine
	scheduler     *scheduler.Scheduler
	events        domain.EventBus
	rng           randx.Source
}

// NewDispatcher creates the dispatcher. The debouncer must be wired to
// call OnFlush.
func NewDispatcher(
	mb *bus.MessageBus,
	contacts domain.ContactRepository,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	engine *personality.Engine,
	sched *scheduler.Scheduler,
	events domain.EventBus,
	rng randx.Source,
) *Dispatcher {
	return &Dispatcher{
		bus:           mb,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		engine:        engine,
		scheduler:     sched,
		events:        events,
		rng:           rng,
	}
}

// SetDebouncer injects the debouncer after construction; the debouncer's
// flush callback points back at this dispatcher.
func (d *Dispatcher) SetDebouncer(db *debounce.Debouncer) { d.debouncer = db }

// Run consumes the inbound bus until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.InfoC(component, "Dispatcher started")
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC(component, "Dispatcher stopped")
			return
		}
		d.handleInbound(ctx, msg)
	}
}

// handleInbound upserts the contact and conversation, persists the message,
// and hands it to the debounce buffer.
func (d *Dispatcher) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	contact, err := d.contacts.Upsert(ctx, msg.ChannelKey, msg.SenderName)
	if err != nil {
		logger.ErrorCF(component, "Failed to upsert contact", map[string]interface{}{
			"channel_key": msg.ChannelKey,
			"error":       err.Error(),
		})
		return
	}

	conversation, err := d.conversations.GetOrCreate(ctx, contact.ID, msg.ChannelKey)
	if err != nil {
		logger.ErrorCF(component, "Failed to resolve conversation", map[string]interface{}{
			"channel_key": msg.ChannelKey,
			"error":       err.Error(),
		})
		return
	}

	inbound := &domain.Message{
		ID:             domain.NewID(),
		ConversationID: conversation.ID,
		ContactID:      contact.ID,
		Direction:      domain.DirectionInbound,
		Content:        msg.Text,
		ExternalID:     msg.ExternalID,
		CreatedAt:      domain.Now(),
	}
	if err := d.messages.Create(ctx, inbound); err != nil {
		// Buffer it anyway; losing the turn entirely is worse.
		logger.ErrorCF(component, "Failed to persist inbound message", map[string]interface{}{
			"channel_key": msg.ChannelKey,
			"error":       err.Error(),
		})
	}
	if err := d.conversations.UpdateLastActivity(ctx, conversation.ID, inbound.CreatedAt); err != nil {
		logger.WarnCF(component, "Failed to bump last activity", map[string]interface{}{
			"conversation_id": string(conversation.ID),
			"error":           err.Error(),
		})
	}

	if d.events != nil {
		d.events.Publish(domain.NewEvent(domain.EventMessageReceived, conversation.ID, map[string]interface{}{
			"channel_key": msg.ChannelKey,
			"channel":     msg.Channel.String(),
		}))
	}

	d.debouncer.Add(debounce.Buffered{
		ContactID:      contact.ID,
		ConversationID: conversation.ID,
		ChannelKey:     msg.ChannelKey,
		Text:           msg.Text,
		ExternalID:     msg.ExternalID,
	})
}

// OnFlush handles one combined burst: schedule the read receipt, decide
// whether to answer, and either schedule the reply or mark the skip.
func (d *Dispatcher) OnFlush(f debounce.Flush) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if len(f.ExternalIDs) > 0 {
		receiptDelay := time.Duration(d.rng.Between(readReceiptMinDelayMs, readReceiptMaxDelayMs)) * time.Millisecond
		if err := d.scheduler.ScheduleReadReceipt(ctx, f.ChannelKey, f.ExternalIDs, receiptDelay); err != nil {
			logger.WarnCF(component, "Failed to schedule read receipt", map[string]interface{}{
				"channel_key": f.ChannelKey,
				"error":       err.Error(),
			})
		}
	}

	decision, err := d.engine.Evaluate(ctx, f.ContactID, f.ConversationID, f.CombinedText)
	if err != nil {
		logger.ErrorCF(component, "Failed to evaluate response", map[string]interface{}{
			"channel_key": f.ChannelKey,
			"error":       err.Error(),
		})
		return
	}

	if !decision.ShouldRespond {
		if err := d.messages.MarkLastInboundSkipped(ctx, f.ConversationID); err != nil {
			logger.WarnCF(component, "Failed to mark skip", map[string]interface{}{
				"conversation_id": string(f.ConversationID),
				"error":           err.Error(),
			})
		}
		logger.DebugCF(component, "Deliberately not responding", map[string]interface{}{
			"channel_key": f.ChannelKey,
		})
		if d.events != nil {
			d.events.Publish(domain.NewEvent(domain.EventResponseSkipped, f.ConversationID, map[string]interface{}{
				"channel_key": f.ChannelKey,
			}))
		}
		return
	}

	err = d.scheduler.ScheduleResponse(ctx, scheduler.ResponsePayload{
		ConversationID: f.ConversationID,
		ContactID:      f.ContactID,
		ChannelKey:     f.ChannelKey,
		DelayMs:        decision.DelayMs,
	}, decision.TypingDurationMs)
	if err != nil {
		logger.ErrorCF(component, "Failed to schedule response", map[string]interface{}{
			"channel_key": f.ChannelKey,
			"error":       err.Error(),
		})
	}
}
