package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kimy-labs/kimy/pkg/channels"
	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/infrastructure/queue"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/memory"
	"github.com/kimy-labs/kimy/pkg/personality"
	"github.com/kimy-labs/kimy/pkg/providers"
	"github.com/kimy-labs/kimy/pkg/randx"
	"github.com/kimy-labs/kimy/pkg/textsplit"
)

// historyLimit is how many past turns a reply completion sees.
const historyLimit = 20

// proactiveHistoryLimit is the shorter window a spontaneous message sees.
const proactiveHistoryLimit = 10

// ---------------------------------------------------------------------------
// Typing queue processor
// ---------------------------------------------------------------------------

// TypingProcessor handles typing indicators and read receipts. Both are
// fire-and-forget: a transport failure is logged, never retried.
type TypingProcessor struct {
	registry *channels.Registry
}

// NewTypingProcessor creates the typing-queue processor.
func NewTypingProcessor(registry *channels.Registry) *TypingProcessor {
	return &TypingProcessor{registry: registry}
}

// Handle implements queue.Handler for the typing queue.
func (p *TypingProcessor) Handle(ctx context.Context, job queue.Job) error {
	switch job.Name {
	case domain.JobShowTyping:
		var payload TypingPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return queue.Permanent(fmt.Errorf("typing: bad payload: %w", err))
		}
		transport, err := p.registry.ForKey(payload.ChannelKey)
		if err != nil {
			return queue.Permanent(err)
		}
		if err := transport.SendTyping(ctx, payload.ChannelKey, time.Duration(payload.DurationMs)*time.Millisecond); err != nil {
			logger.WarnCF("typing", "Typing indicator failed", map[string]interface{}{
				"channel_key": payload.ChannelKey,
				"error":       err.Error(),
			})
		}
		return nil

	case domain.JobMarkAsRead:
		var payload ReadReceiptPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return queue.Permanent(fmt.Errorf("typing: bad payload: %w", err))
		}
		transport, err := p.registry.ForKey(payload.ChannelKey)
		if err != nil {
			return queue.Permanent(err)
		}
		if err := transport.MarkAsRead(ctx, payload.ChannelKey, payload.MessageIDs); err != nil {
			logger.WarnCF("typing", "Mark-as-read failed", map[string]interface{}{
				"channel_key": payload.ChannelKey,
				"error":       err.Error(),
			})
		}
		return nil

	default:
		return queue.Permanent(fmt.Errorf("typing: unknown job %q", job.Name))
	}
}

// ---------------------------------------------------------------------------
// Response queue processor
// ---------------------------------------------------------------------------

// ResponseProcessor generates and delivers the delayed reply for one
// answered burst.
type ResponseProcessor struct {
	provider      providers.Provider
	registry      *channels.Registry
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	memory        *memory.Tracker
	prompts       *PromptBuilder
	events        domain.EventBus
}

// NewResponseProcessor creates the response-queue processor.
func NewResponseProcessor(
	provider providers.Provider,
	registry *channels.Registry,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	mem *memory.Tracker,
	prompts *PromptBuilder,
	events domain.EventBus,
) *ResponseProcessor {
	return &ResponseProcessor{
		provider:      provider,
		registry:      registry,
		conversations: conversations,
		messages:      messages,
		memory:        mem,
		prompts:       prompts,
		events:        events,
	}
}

// Handle implements queue.Handler for the response queue.
func (p *ResponseProcessor) Handle(ctx context.Context, job queue.Job) error {
	var payload ResponsePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("response: bad payload: %w", err))
	}

	history, err := p.prompts.History(ctx, payload.ConversationID, historyLimit)
	if err != nil {
		return fmt.Errorf("response: load history: %w", err)
	}

	// The turn being answered is the newest user message.
	userIdx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			userIdx = i
			break
		}
	}
	if userIdx == -1 {
		logger.DebugC("response", "No inbound turn to answer, dropping job")
		return nil
	}

	text, err := p.provider.Generate(ctx, providers.GenerateRequest{
		SystemInstruction: p.prompts.System(ctx, payload.ContactID, false),
		History:           history[:userIdx],
		UserMessage:       history[userIdx].Content,
	})
	if err != nil {
		return fmt.Errorf("response: generate: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		logger.WarnCF("response", "Empty completion, nothing to send", map[string]interface{}{
			"conversation_id": string(payload.ConversationID),
		})
		return nil
	}

	transport, err := p.registry.ForKey(payload.ChannelKey)
	if err != nil {
		return queue.Permanent(err)
	}

	parts := textsplit.Split(text)
	for _, part := range parts {
		if err := transport.SendText(ctx, payload.ChannelKey, part); err != nil {
			return fmt.Errorf("response: send: %w", err)
		}
	}

	outbound := &domain.Message{
		ID:             domain.NewID(),
		ConversationID: payload.ConversationID,
		ContactID:      payload.ContactID,
		Direction:      domain.DirectionOutbound,
		Content:        strings.Join(parts, " "),
		DelayMs:        payload.DelayMs,
		CreatedAt:      domain.Now(),
	}
	if err := p.messages.Create(ctx, outbound); err != nil {
		logger.ErrorCF("response", "Failed to persist outbound message", map[string]interface{}{
			"conversation_id": string(payload.ConversationID),
			"error":           err.Error(),
		})
	}
	if err := p.conversations.UpdateLastActivity(ctx, payload.ConversationID, domain.Now()); err != nil {
		logger.WarnCF("response", "Failed to bump last activity", map[string]interface{}{
			"conversation_id": string(payload.ConversationID),
			"error":           err.Error(),
		})
	}
	p.memory.TrackOutbound(ctx, payload.ContactID, payload.ConversationID)

	logger.DebugCF("response", "Response sent", map[string]interface{}{
		"channel_key": payload.ChannelKey,
		"parts":       len(parts),
	})
	if p.events != nil {
		p.events.Publish(domain.NewEvent(domain.EventResponseSent, payload.ConversationID, map[string]interface{}{
			"channel_key": payload.ChannelKey,
			"parts":       len(parts),
		}))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Proactive queue processor
// ---------------------------------------------------------------------------

// ProactiveProcessor runs the recurring evaluation and delivers the
// spontaneous messages it schedules.
type ProactiveProcessor struct {
	evaluator     *personality.ProactiveEvaluator
	scheduler     *Scheduler
	provider      providers.Provider
	registry      *channels.Registry
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	memory        *memory.Tracker
	prompts       *PromptBuilder
	events        domain.EventBus
	rng           randx.Source
	now           func() time.Time
}

// NewProactiveProcessor creates the proactive-queue processor.
func NewProactiveProcessor(
	evaluator *personality.ProactiveEvaluator,
	sched *Scheduler,
	provider providers.Provider,
	registry *channels.Registry,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	mem *memory.Tracker,
	prompts *PromptBuilder,
	events domain.EventBus,
	rng randx.Source,
) *ProactiveProcessor {
	return &ProactiveProcessor{
		evaluator:     evaluator,
		scheduler:     sched,
		provider:      provider,
		registry:      registry,
		conversations: conversations,
		messages:      messages,
		memory:        mem,
		prompts:       prompts,
		events:        events,
		rng:           rng,
		now:           time.Now,
	}
}

// Handle implements queue.Handler for the proactive queue.
func (p *ProactiveProcessor) Handle(ctx context.Context, job queue.Job) error {
	switch job.Name {
	case domain.JobEvaluateProactive:
		return p.evaluate(ctx)
	case domain.JobSendProactive:
		var payload ProactivePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return queue.Permanent(fmt.Errorf("proactive: bad payload: %w", err))
		}
		return p.send(ctx, payload)
	default:
		return queue.Permanent(fmt.Errorf("proactive: unknown job %q", job.Name))
	}
}

func (p *ProactiveProcessor) evaluate(ctx context.Context) error {
	candidates, err := p.evaluator.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("proactive: evaluate: %w", err)
	}
	for _, c := range candidates {
		delay := time.Until(c.ScheduledAt)
		if delay < 0 {
			delay = 0
		}
		err := p.scheduler.ScheduleProactiveMessage(ctx, ProactivePayload{
			ContactID:  c.ContactID,
			ChannelKey: c.ChannelKey,
			Topic:      c.Topic,
		}, delay)
		if err != nil {
			return err
		}
	}
	if len(candidates) > 0 {
		logger.DebugCF("proactive", "Evaluation scheduled messages", map[string]interface{}{
			"count": len(candidates),
		})
	}
	return nil
}

func (p *ProactiveProcessor) send(ctx context.Context, payload ProactivePayload) error {
	conversation, err := p.conversations.GetOrCreate(ctx, payload.ContactID, payload.ChannelKey)
	if err != nil {
		return fmt.Errorf("proactive: get conversation: %w", err)
	}

	history, err := p.prompts.History(ctx, conversation.ID, proactiveHistoryLimit)
	if err != nil {
		return fmt.Errorf("proactive: load history: %w", err)
	}

	// Without tool support the model cannot look anything up mid-message,
	// so the prompt steers it away from promising to.
	instruction := p.evaluator.Prompt(payload.Topic)
	if !p.provider.SupportsTools() {
		instruction += "\n\nVoce nao tem como consultar nada agora (agenda, links, buscas). Nao prometa checar ou mandar algo depois."
	}

	text, err := p.provider.Generate(ctx, providers.GenerateRequest{
		SystemInstruction: p.prompts.System(ctx, payload.ContactID, true),
		History:           history,
		UserMessage:       instruction,
	})
	if err != nil {
		return fmt.Errorf("proactive: generate: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	transport, err := p.registry.ForKey(payload.ChannelKey)
	if err != nil {
		return queue.Permanent(err)
	}

	// A short burst of typing right before the message, as if the bot just
	// picked up the phone.
	typing := time.Duration(p.rng.Between(1500, 4000)) * time.Millisecond
	if err := transport.SendTyping(ctx, payload.ChannelKey, typing); err != nil {
		logger.WarnCF("proactive", "Typing indicator failed", map[string]interface{}{
			"channel_key": payload.ChannelKey,
			"error":       err.Error(),
		})
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(typing):
	}

	parts := textsplit.Split(text)
	for _, part := range parts {
		if err := transport.SendText(ctx, payload.ChannelKey, part); err != nil {
			return fmt.Errorf("proactive: send: %w", err)
		}
	}

	outbound := &domain.Message{
		ID:             domain.NewID(),
		ConversationID: conversation.ID,
		ContactID:      payload.ContactID,
		Direction:      domain.DirectionOutbound,
		Content:        strings.Join(parts, " "),
		IsProactive:    true,
		CreatedAt:      domain.Now(),
	}
	if err := p.messages.Create(ctx, outbound); err != nil {
		logger.ErrorCF("proactive", "Failed to persist outbound message", map[string]interface{}{
			"conversation_id": string(conversation.ID),
			"error":           err.Error(),
		})
	}
	if err := p.conversations.UpdateLastActivity(ctx, conversation.ID, domain.Now()); err != nil {
		logger.WarnCF("proactive", "Failed to bump last activity", map[string]interface{}{
			"conversation_id": string(conversation.ID),
			"error":           err.Error(),
		})
	}
	p.memory.TrackOutbound(ctx, payload.ContactID, conversation.ID)

	logger.InfoCF("proactive", "Proactive message sent", map[string]interface{}{
		"channel_key": payload.ChannelKey,
		"topic":       payload.Topic,
	})
	if p.events != nil {
		p.events.Publish(domain.NewEvent(domain.EventProactiveSent, conversation.ID, map[string]interface{}{
			"channel_key": payload.ChannelKey,
			"topic":       payload.Topic,
		}))
	}
	return nil
}
