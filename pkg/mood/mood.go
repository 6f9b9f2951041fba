// Package mood implements the mood state machine. A background loop
// re-rolls the bot's mood on a jittered interval; the rest of the system
// reads the current mood through the Source interface. The machine is the
// single writer of the persisted mood field.
package mood

import (
	"context"
	"sync"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/randx"
)

const component = "mood"

// Source is the read side of the state machine.
type Source interface {
	Current() domain.Mood
}

// Machine periodically transitions the bot's mood based on the hour of day.
type Machine struct {
	states domain.BotStateRepository
	events domain.EventBus
	rng    randx.Source

	minPeriod time.Duration
	maxPeriod time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	current domain.Mood
}

// NewMachine creates a mood machine re-rolling every [minPeriod, maxPeriod).
func NewMachine(states domain.BotStateRepository, events domain.EventBus, rng randx.Source, minPeriod, maxPeriod time.Duration) *Machine {
	return &Machine{
		states:    states,
		events:    events,
		rng:       rng,
		minPeriod: minPeriod,
		maxPeriod: maxPeriod,
		now:       time.Now,
		current:   domain.MoodNeutral,
	}
}

// Current returns the mood as of the last transition.
func (m *Machine) Current() domain.Mood {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Run ensures the singleton state exists, transitions once immediately,
// then keeps transitioning on a jittered interval until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	state, err := m.states.EnsureDefault(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = state.Mood
	m.mu.Unlock()

	m.transition(ctx)

	for {
		period := m.nextPeriod()
		logger.DebugCF(component, "Next mood change scheduled", map[string]interface{}{
			"in": period.String(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(period):
			m.transition(ctx)
		}
	}
}

func (m *Machine) transition(ctx context.Context) {
	now := m.now()
	next := m.rollMood(now.Hour())

	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	if err := m.states.SetMood(ctx, next, now); err != nil {
		logger.ErrorCF(component, "Failed to persist mood", map[string]interface{}{
			"mood":  next.String(),
			"error": err.Error(),
		})
		return
	}

	logger.InfoCF(component, "Mood changed", map[string]interface{}{
		"from": prev.String(),
		"to":   next.String(),
	})
	if m.events != nil {
		m.events.Publish(domain.NewEvent(domain.EventMoodChanged, domain.EntityID(domain.BotStateID), map[string]string{
			"from": prev.String(),
			"to":   next.String(),
		}))
	}
}

// rollMood picks the next mood for the given hour. Night hours force
// tiredness; morning and mid-afternoon bias toward excited and busy; any
// other hour draws from a weighted bag.
func (m *Machine) rollMood(hour int) domain.Mood {
	switch {
	case hour >= 23 || hour < 7:
		return domain.MoodTired
	case hour >= 9 && hour < 12:
		if m.rng.Float64() < 0.6 {
			return domain.MoodExcited
		}
		return domain.MoodNeutral
	case hour >= 14 && hour < 16:
		if m.rng.Float64() < 0.4 {
			return domain.MoodBusy
		}
		return domain.MoodNeutral
	default:
		bag := []domain.Mood{
			domain.MoodExcited,
			domain.MoodNeutral, domain.MoodNeutral, domain.MoodNeutral,
			domain.MoodTired,
			domain.MoodBusy,
		}
		return bag[m.rng.IntN(len(bag))]
	}
}

func (m *Machine) nextPeriod() time.Duration {
	return randx.DurationBetween(m.rng, m.minPeriod, m.maxPeriod)
}

var _ Source = (*Machine)(nil)
