// Package scheduler translates personality decisions into durable delayed
// jobs and processes those jobs when they come due. Three queues carry the
// work: the typing queue (typing indicators and read receipts), the
// response queue (LLM replies), and the proactive queue (evaluation and
// spontaneous sends).
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/infrastructure/queue"
	"github.com/kimy-labs/kimy/pkg/logger"
)

const component = "scheduler"

// evaluateProactiveSpec runs the proactive evaluation every half hour.
const evaluateProactiveSpec = "*/30 * * * *"

// ---------------------------------------------------------------------------
// Job payloads
// ---------------------------------------------------------------------------

// ResponsePayload drives one delayed reply.
type ResponsePayload struct {
	ConversationID domain.EntityID `json:"conversation_id"`
	ContactID      domain.EntityID `json:"contact_id"`
	ChannelKey     string          `json:"channel_key"`
	DelayMs        int64           `json:"delay_ms"`
}

// TypingPayload drives one typing indicator.
type TypingPayload struct {
	ChannelKey string `json:"channel_key"`
	DurationMs int64  `json:"duration_ms"`
}

// ReadReceiptPayload drives one delayed mark-as-read.
type ReadReceiptPayload struct {
	ChannelKey string   `json:"channel_key"`
	MessageIDs []string `json:"message_ids"`
}

// ProactivePayload drives one spontaneous outreach.
type ProactivePayload struct {
	ContactID  domain.EntityID `json:"contact_id"`
	ChannelKey string          `json:"channel_key"`
	Topic      string          `json:"topic"`
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// Scheduler enqueues the delayed jobs behind every outbound behavior.
type Scheduler struct {
	backend queue.Backend
	events  domain.EventBus
}

// New creates a scheduler on top of the queue backend.
func New(backend queue.Backend, events domain.EventBus) *Scheduler {
	return &Scheduler{backend: backend, events: events}
}

// ScheduleResponse enqueues the typing indicator and the reply for one
// answered burst. The typing job fires early enough that the indicator
// runs right up to the moment the reply lands.
func (s *Scheduler) ScheduleResponse(ctx context.Context, p ResponsePayload, typingDurationMs int64) error {
	typingDelay := p.DelayMs - typingDurationMs
	if typingDelay < 0 {
		typingDelay = 0
	}

	typing, err := json.Marshal(TypingPayload{ChannelKey: p.ChannelKey, DurationMs: typingDurationMs})
	if err != nil {
		return fmt.Errorf("scheduler: marshal typing payload: %w", err)
	}
	if _, err := s.backend.Enqueue(ctx, domain.QueueTyping, domain.JobShowTyping, typing, time.Duration(typingDelay)*time.Millisecond); err != nil {
		return fmt.Errorf("scheduler: enqueue typing job: %w", err)
	}

	response, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("scheduler: marshal response payload: %w", err)
	}
	if _, err := s.backend.Enqueue(ctx, domain.QueueResponse, domain.JobSendResponse, response, time.Duration(p.DelayMs)*time.Millisecond); err != nil {
		return fmt.Errorf("scheduler: enqueue response job: %w", err)
	}

	logger.DebugCF(component, "Response scheduled", map[string]interface{}{
		"channel_key": p.ChannelKey,
		"delay_ms":    p.DelayMs,
		"typing_ms":   typingDurationMs,
	})
	if s.events != nil {
		s.events.Publish(domain.NewEvent(domain.EventResponseScheduled, p.ConversationID, map[string]interface{}{
			"channel_key": p.ChannelKey,
			"delay_ms":    p.DelayMs,
		}))
	}
	return nil
}

// ScheduleReadReceipt enqueues a delayed mark-as-read for a flushed burst.
func (s *Scheduler) ScheduleReadReceipt(ctx context.Context, channelKey string, messageIDs []string, delay time.Duration) error {
	if len(messageIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(ReadReceiptPayload{ChannelKey: channelKey, MessageIDs: messageIDs})
	if err != nil {
		return fmt.Errorf("scheduler: marshal read receipt payload: %w", err)
	}
	if _, err := s.backend.Enqueue(ctx, domain.QueueTyping, domain.JobMarkAsRead, payload, delay); err != nil {
		return fmt.Errorf("scheduler: enqueue read receipt: %w", err)
	}
	return nil
}

// ScheduleProactiveMessage enqueues one spontaneous outreach.
func (s *Scheduler) ScheduleProactiveMessage(ctx context.Context, p ProactivePayload, delay time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("scheduler: marshal proactive payload: %w", err)
	}
	if _, err := s.backend.Enqueue(ctx, domain.QueueProactive, domain.JobSendProactive, payload, delay); err != nil {
		return fmt.Errorf("scheduler: enqueue proactive job: %w", err)
	}

	logger.InfoCF(component, "Proactive message scheduled", map[string]interface{}{
		"channel_key": p.ChannelKey,
		"topic":       p.Topic,
		"delay":       delay.String(),
	})
	if s.events != nil {
		s.events.Publish(domain.NewEvent(domain.EventProactiveScheduled, p.ContactID, map[string]interface{}{
			"channel_key": p.ChannelKey,
			"topic":       p.Topic,
		}))
	}
	return nil
}

// RegisterRecurringEvaluation upserts the half-hourly proactive evaluation.
// Registering again after a restart replaces the schedule instead of
// stacking a second one.
func (s *Scheduler) RegisterRecurringEvaluation(ctx context.Context) error {
	return s.backend.RegisterRecurringCron(ctx, domain.QueueProactive, domain.JobEvaluateProactive, evaluateProactiveSpec)
}
