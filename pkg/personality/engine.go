// Package personality holds the human-pacing behaviors: deciding whether
// to answer at all, how long to wait, and when to reach out spontaneously.
// All randomness flows through an injected randx.Source and the current
// mood is read through the mood.Source interface, so every decision is
// replayable under test.
package personality

import (
	"context"

	"github.com/kimy-labs/kimy/pkg/domain"
)

// Decision is the outcome of evaluating one flushed inbound burst.
type Decision struct {
	ShouldRespond    bool
	DelayMs          int64
	TypingDurationMs int64
}

// Engine combines the skip evaluator and the delay calculator into the
// single decision the dispatcher acts on. Skip is evaluated first so a
// skipped message never consumes a delay roll.
type Engine struct {
	skip  *SkipEvaluator
	delay *DelayCalculator

	// instant short-circuits everything for development setups.
	instant bool
}

// NewEngine creates a decision engine.
func NewEngine(skip *SkipEvaluator, delay *DelayCalculator, instant bool) *Engine {
	return &Engine{skip: skip, delay: delay, instant: instant}
}

// Evaluate decides whether and when to respond to the combined text.
func (e *Engine) Evaluate(ctx context.Context, contactID, conversationID domain.EntityID, text string) (Decision, error) {
	if e.instant {
		return Decision{ShouldRespond: true}, nil
	}

	respond, err := e.skip.ShouldRespond(ctx, contactID, conversationID, text)
	if err != nil {
		return Decision{}, err
	}
	if !respond {
		return Decision{ShouldRespond: false}, nil
	}

	plan := e.delay.Calculate(text)
	return Decision{
		ShouldRespond:    true,
		DelayMs:          plan.DelayMs,
		TypingDurationMs: plan.TypingDurationMs,
	}, nil
}
