package personality

import (
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/mood"
	"github.com/kimy-labs/kimy/pkg/randx"
)

// DelayPlan is the outcome of a delay calculation.
type DelayPlan struct {
	// DelayMs is how long to wait before sending the response.
	DelayMs int64
	// TypingDurationMs is how long the typing indicator shows before the
	// response lands.
	TypingDurationMs int64
}

// DelayCalculator models how long a person would take to notice and answer
// a message: a base drawn from the message length, scaled by mood and time
// of day, with an occasional away-from-phone spike.
type DelayCalculator struct {
	moods mood.Source
	rng   randx.Source
	now   func() time.Time

	baseDelayMs int64
	maxDelayMs  int64
}

// NewDelayCalculator creates a delay calculator clamping delays to the
// [baseDelayMs, maxDelayMs] range.
func NewDelayCalculator(moods mood.Source, rng randx.Source, baseDelayMs, maxDelayMs int64) *DelayCalculator {
	return &DelayCalculator{
		moods:       moods,
		rng:         rng,
		now:         time.Now,
		baseDelayMs: baseDelayMs,
		maxDelayMs:  maxDelayMs,
	}
}

// Calculate produces the delay plan for one combined inbound text.
func (c *DelayCalculator) Calculate(text string) DelayPlan {
	length := len(text)

	var base float64
	switch {
	case length < 5:
		base = c.rng.Between(2000, 8000)
	case length < 30:
		base = c.rng.Between(5000, 25000)
	case length < 100:
		base = c.rng.Between(15000, 60000)
	default:
		base = c.rng.Between(30000, 120000)
	}

	moodMult := 1.0
	switch c.moods.Current() {
	case domain.MoodExcited:
		moodMult = 0.6
	case domain.MoodTired:
		moodMult = 1.8
	case domain.MoodBusy:
		moodMult = 2.5
	}

	timeMult := 1.0
	hour := c.now().Hour()
	switch {
	case hour >= 23 || hour < 7:
		timeMult = 3.0
	case hour < 9:
		timeMult = 1.5
	case hour >= 12 && hour < 14:
		timeMult = 1.3
	case hour >= 18 && hour < 20:
		timeMult = 0.8
	}

	// Sometimes the phone is simply not in hand.
	spikeMult := 1.0
	if c.rng.Float64() < 0.1 {
		spikeMult = c.rng.Between(3, 8)
	}

	delay := base * moodMult * timeMult * spikeMult
	if delay < float64(c.baseDelayMs) {
		delay = float64(c.baseDelayMs)
	}
	if delay > float64(c.maxDelayMs) {
		delay = float64(c.maxDelayMs)
	}

	// Typing speed: the estimated reply length at a randomized chars/minute.
	estimatedLength := float64(length) * 1.5
	if estimatedLength > 200 {
		estimatedLength = 200
	}
	charsPerMs := c.rng.Between(40, 80) / 60000.0
	typing := estimatedLength / charsPerMs
	if typing < 1500 {
		typing = 1500
	}
	if typing > 12000 {
		typing = 12000
	}

	return DelayPlan{
		DelayMs:          int64(delay + 0.5),
		TypingDurationMs: int64(typing + 0.5),
	}
}
