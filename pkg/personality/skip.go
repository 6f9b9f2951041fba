package personality

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/mood"
	"github.com/kimy-labs/kimy/pkg/randx"
)

// Messages that open like a greeting are always answered.
var greetingPrefixes = []string{
	"oi", "ola", "eai", "e ai", "fala",
	"bom dia", "boa tarde", "boa noite",
	"hey", "opa",
}

// Short interjections that call for the bot's attention. "ky" is the
// contraction contacts use for the default bot name.
var attentionPrefixes = []string{"ei", "psiu", "ky"}

// SkipEvaluator decides whether an inbound message deserves a response at
// all. Hard rules run first in a fixed order; only when none of them fires
// does the probabilistic skip roll happen.
type SkipEvaluator struct {
	contacts domain.ContactRepository
	messages domain.MessageRepository
	moods    mood.Source
	rng      randx.Source

	botName             string
	baseSkipProbability float64
}

// NewSkipEvaluator creates a skip evaluator.
func NewSkipEvaluator(
	contacts domain.ContactRepository,
	messages domain.MessageRepository,
	moods mood.Source,
	rng randx.Source,
	botName string,
	baseSkipProbability float64,
) *SkipEvaluator {
	return &SkipEvaluator{
		contacts:            contacts,
		messages:            messages,
		moods:               moods,
		rng:                 rng,
		botName:             strings.ToLower(botName),
		baseSkipProbability: baseSkipProbability,
	}
}

// ShouldRespond returns false when the message should be deliberately
// ignored. The rules, in order:
//
//  1. questions are always answered
//  2. greetings are always answered
//  3. calling the bot by name is always answered
//  4. messages shorter than two characters are never answered
//  5. never skip twice in a row
//  6. three or more consecutive unanswered messages force a response
//  7. otherwise roll against the mood-adjusted skip probability
func (e *SkipEvaluator) ShouldRespond(ctx context.Context, contactID, conversationID domain.EntityID, text string) (bool, error) {
	skipProb := e.baseSkipProbability
	contact, err := e.contacts.FindByID(ctx, contactID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// keep the global probability
	case err != nil:
		return false, err
	case contact.SkipProbability > skipProb:
		skipProb = contact.SkipProbability
	}

	text = strings.ToLower(strings.TrimSpace(text))

	if strings.Contains(text, "?") {
		return true, nil
	}
	for _, p := range greetingPrefixes {
		if strings.HasPrefix(text, p) {
			return true, nil
		}
	}
	if e.botName != "" && (strings.HasPrefix(text, e.botName) || strings.Contains(text, e.botName)) {
		return true, nil
	}
	for _, p := range attentionPrefixes {
		if strings.HasPrefix(text, p) {
			return true, nil
		}
	}

	if utf8.RuneCountInString(text) < 2 {
		return false, nil
	}

	recent, err := e.messages.Recent(ctx, conversationID, 5)
	if err != nil {
		return false, err
	}
	if len(recent) > 0 && recent[0].WasSkipped {
		return true, nil
	}
	if countConsecutiveInbound(recent) >= 3 {
		return true, nil
	}

	switch e.moods.Current() {
	case domain.MoodBusy:
		skipProb *= 2.0
	case domain.MoodExcited:
		skipProb *= 0.3
	case domain.MoodTired:
		skipProb *= 1.5
	}
	if skipProb > 0.5 {
		skipProb = 0.5
	}

	respond := e.rng.Float64() > skipProb
	if !respond {
		logger.DebugCF("personality", "Skipping message", map[string]interface{}{
			"conversation_id":  string(conversationID),
			"skip_probability": skipProb,
		})
	}
	return respond, nil
}

// countConsecutiveInbound counts inbound messages from the newest backwards,
// stopping at the first outbound turn.
func countConsecutiveInbound(messages []*domain.Message) int {
	count := 0
	for _, m := range messages {
		if m.Direction != domain.DirectionInbound {
			break
		}
		count++
	}
	return count
}
