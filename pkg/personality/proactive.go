package personality

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/randx"
)

// ProactiveCandidate is one contact the bot decided to reach out to.
type ProactiveCandidate struct {
	ContactID   domain.EntityID
	ChannelKey  string
	Topic       string
	ScheduledAt time.Time
}

// ProactiveEvaluator periodically considers every active contact and rolls
// whether the bot should start a conversation. The probability grows with
// the time since the last activity and is capped at 30%.
type ProactiveEvaluator struct {
	states        domain.BotStateRepository
	contacts      domain.ContactRepository
	conversations domain.ConversationRepository
	rng           randx.Source
	now           func() time.Time

	topics   []Topic
	minHours float64
	maxHours float64
}

// NewProactiveEvaluator creates a proactive evaluator. minHours is the quiet
// period before a contact becomes a candidate; at maxHours of silence the
// probability reaches its cap.
func NewProactiveEvaluator(
	states domain.BotStateRepository,
	contacts domain.ContactRepository,
	conversations domain.ConversationRepository,
	rng randx.Source,
	topics []Topic,
	minHours, maxHours float64,
) *ProactiveEvaluator {
	return &ProactiveEvaluator{
		states:        states,
		contacts:      contacts,
		conversations: conversations,
		rng:           rng,
		now:           time.Now,
		topics:        topics,
		minHours:      minHours,
		maxHours:      maxHours,
	}
}

// Evaluate returns the contacts to message spontaneously, each with a topic
// and a jittered send time 5 to 60 minutes out. It returns nothing when
// proactive messaging is disabled or the bot is inside its sleep window.
func (e *ProactiveEvaluator) Evaluate(ctx context.Context) ([]ProactiveCandidate, error) {
	state, err := e.states.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !state.ProactiveEnabled {
		return nil, nil
	}
	if inSleepWindow(state.SleepStart, state.SleepEnd, now) {
		logger.DebugC("personality", "Inside sleep window, no proactive messages")
		return nil, nil
	}

	active, err := e.contacts.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	var out []ProactiveCandidate
	for _, contact := range active {
		last, err := e.conversations.LastActivityForContact(ctx, contact.ID)
		if err != nil {
			return nil, err
		}
		if last.IsZero() {
			continue
		}

		hoursSince := now.Sub(last).Hours()
		if hoursSince < e.minHours {
			continue
		}

		probability := (hoursSince - e.minHours) / (e.maxHours - e.minHours) * 0.3
		if probability > 0.3 {
			probability = 0.3
		}

		if e.rng.Float64() >= probability {
			continue
		}

		topic := e.topics[e.rng.IntN(len(e.topics))]
		delay := time.Duration(e.rng.Between(5, 60)) * time.Minute
		out = append(out, ProactiveCandidate{
			ContactID:   contact.ID,
			ChannelKey:  contact.ChannelKey,
			Topic:       topic.Name,
			ScheduledAt: now.Add(delay),
		})
	}
	return out, nil
}

// Prompt resolves the LLM instruction for a topic name.
func (e *ProactiveEvaluator) Prompt(topic string) string {
	return PromptFor(e.topics, topic)
}

// inSleepWindow reports whether t falls inside the [start, end) window.
// A start later than the end means the window wraps past midnight.
func inSleepWindow(start, end string, t time.Time) bool {
	startMin, err1 := parseClock(start)
	endMin, err2 := parseClock(end)
	if err1 != nil || err2 != nil {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if startMin > endMin {
		return cur >= startMin || cur < endMin
	}
	return cur >= startMin && cur < endMin
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("personality: bad clock value %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("personality: bad hour in %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("personality: bad minute in %q", s)
	}
	return hours*60 + minutes, nil
}
