package personality

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/randx"
)

// ---------------------------------------------------------------------------
// Stub collaborators
// ---------------------------------------------------------------------------

type stubMood struct{ m domain.Mood }

func (s stubMood) Current() domain.Mood { return s.m }

type stubContacts struct {
	byID   map[domain.EntityID]*domain.Contact
	active []*domain.Contact
}

func (s *stubContacts) FindByID(_ context.Context, id domain.EntityID) (*domain.Contact, error) {
	if c, ok := s.byID[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubContacts) FindByChannelKey(_ context.Context, _ string) (*domain.Contact, error) {
	return nil, domain.ErrNotFound
}

func (s *stubContacts) Upsert(_ context.Context, _, _ string) (*domain.Contact, error) {
	return nil, nil
}

func (s *stubContacts) FindActive(_ context.Context) ([]*domain.Contact, error) {
	return s.active, nil
}

type stubMessages struct{ recent []*domain.Message }

func (s *stubMessages) Create(_ context.Context, _ *domain.Message) error { return nil }
func (s *stubMessages) Recent(_ context.Context, _ domain.EntityID, _ int) ([]*domain.Message, error) {
	return s.recent, nil
}
func (s *stubMessages) Since(_ context.Context, _ domain.EntityID, _ time.Time, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (s *stubMessages) FindByID(_ context.Context, _ domain.EntityID) (*domain.Message, error) {
	return nil, domain.ErrNotFound
}
func (s *stubMessages) MarkLastInboundSkipped(_ context.Context, _ domain.EntityID) error {
	return nil
}

type stubStates struct{ state domain.BotState }

func (s *stubStates) EnsureDefault(_ context.Context) (*domain.BotState, error) {
	st := s.state
	return &st, nil
}
func (s *stubStates) Get(_ context.Context) (*domain.BotState, error) {
	st := s.state
	return &st, nil
}
func (s *stubStates) SetMood(_ context.Context, _ domain.Mood, _ time.Time) error { return nil }

type stubConversations struct{ lastActivity map[domain.EntityID]time.Time }

func (s *stubConversations) FindByID(_ context.Context, _ domain.EntityID) (*domain.Conversation, error) {
	return nil, domain.ErrNotFound
}
func (s *stubConversations) GetOrCreate(_ context.Context, _ domain.EntityID, _ string) (*domain.Conversation, error) {
	return nil, nil
}
func (s *stubConversations) UpdateLastActivity(_ context.Context, _ domain.EntityID, _ time.Time) error {
	return nil
}
func (s *stubConversations) LastActivityForContact(_ context.Context, id domain.EntityID) (time.Time, error) {
	return s.lastActivity[id], nil
}

func inbound(skipped bool) *domain.Message {
	return &domain.Message{Direction: domain.DirectionInbound, WasSkipped: skipped}
}

func outbound() *domain.Message {
	return &domain.Message{Direction: domain.DirectionOutbound}
}

// ---------------------------------------------------------------------------
// Skip evaluator
// ---------------------------------------------------------------------------

func TestShouldRespondHardRules(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		recent []*domain.Message
		want   bool
	}{
		{name: "question", text: "vc vai la amanha?", want: true},
		{name: "greeting prefix", text: "bom dia pra vc", want: true},
		{name: "bot name as prefix", text: "kimy vem ca", want: true},
		{name: "bot name anywhere", text: "to contando pra kimy agora", want: true},
		{name: "attention prefix", text: "psiu", want: true},
		{name: "too short", text: "k", want: false},
		{
			name:   "last message was skipped",
			text:   "mandei de novo",
			recent: []*domain.Message{inbound(true)},
			want:   true,
		},
		{
			name: "three unanswered in a row",
			text: "terceira tentativa aqui",
			recent: []*domain.Message{
				inbound(false), inbound(false), inbound(false), outbound(),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewSkipEvaluator(
				&stubContacts{},
				&stubMessages{recent: tt.recent},
				stubMood{domain.MoodBusy},
				randx.NewSeeded(1),
				"kimy",
				1.0, // would clamp to 0.5; hard rules must win before the roll
			)
			got, err := e.ShouldRespond(context.Background(), "c1", "conv1", tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestShouldRespondZeroProbabilityAlwaysAnswers(t *testing.T) {
	e := NewSkipEvaluator(
		&stubContacts{},
		&stubMessages{recent: []*domain.Message{outbound()}},
		stubMood{domain.MoodNeutral},
		randx.NewSeeded(3),
		"kimy",
		0,
	)
	for i := 0; i < 50; i++ {
		got, err := e.ShouldRespond(context.Background(), "c1", "conv1", "mensagem qualquer sem gatilho")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got {
			t.Fatal("zero skip probability must always respond")
		}
	}
}

func TestShouldRespondProbabilisticRollSkipsSometimes(t *testing.T) {
	e := NewSkipEvaluator(
		&stubContacts{},
		&stubMessages{recent: []*domain.Message{outbound()}},
		stubMood{domain.MoodBusy}, // 0.5 * 2.0 clamped to 0.5
		randx.NewSeeded(7),
		"kimy",
		0.5,
	)
	skips := 0
	for i := 0; i < 400; i++ {
		got, err := e.ShouldRespond(context.Background(), "c1", "conv1", "mensagem qualquer sem gatilho")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got {
			skips++
		}
	}
	if skips == 0 || skips == 400 {
		t.Errorf("expected a mix of skips and responses at p=0.5, got %d/400 skips", skips)
	}
}

func TestShouldRespondUsesContactOverride(t *testing.T) {
	contacts := &stubContacts{byID: map[domain.EntityID]*domain.Contact{
		"c1": {ID: "c1", SkipProbability: 0.5},
	}}
	e := NewSkipEvaluator(
		contacts,
		&stubMessages{recent: []*domain.Message{outbound()}},
		stubMood{domain.MoodNeutral},
		randx.NewSeeded(11),
		"kimy",
		0.01,
	)
	skips := 0
	for i := 0; i < 400; i++ {
		got, err := e.ShouldRespond(context.Background(), "c1", "conv1", "mensagem qualquer sem gatilho")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got {
			skips++
		}
	}
	// At the 0.5 override the skip count must be far above the ~4 the
	// 0.01 base would produce.
	if skips < 100 {
		t.Errorf("contact override not applied, only %d/400 skips", skips)
	}
}

// ---------------------------------------------------------------------------
// Delay calculator
// ---------------------------------------------------------------------------

func TestCalculateDelayStaysWithinBounds(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "tiny message", text: "blz"},
		{name: "short message", text: "como foi o seu dia hoje"},
		{name: "medium message", text: string(make([]byte, 60))},
		{name: "long message", text: string(make([]byte, 300))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDelayCalculator(stubMood{domain.MoodNeutral}, randx.NewSeeded(5), 2000, 600000)
			c.now = func() time.Time {
				return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
			}
			for i := 0; i < 200; i++ {
				plan := c.Calculate(tt.text)
				if plan.DelayMs < 2000 || plan.DelayMs > 600000 {
					t.Fatalf("delay %d out of [2000, 600000]", plan.DelayMs)
				}
				if plan.TypingDurationMs < 1500 || plan.TypingDurationMs > 12000 {
					t.Fatalf("typing duration %d out of [1500, 12000]", plan.TypingDurationMs)
				}
			}
		})
	}
}

func TestCalculateDelayRespectsMaxClamp(t *testing.T) {
	c := NewDelayCalculator(stubMood{domain.MoodBusy}, randx.NewSeeded(13), 2000, 10000)
	c.now = func() time.Time {
		return time.Date(2026, 1, 15, 2, 0, 0, 0, time.UTC) // night, 3x multiplier
	}
	for i := 0; i < 100; i++ {
		if plan := c.Calculate(string(make([]byte, 300))); plan.DelayMs > 10000 {
			t.Fatalf("delay %d exceeds configured max 10000", plan.DelayMs)
		}
	}
}

func TestCalculateDelayHonorsConfiguredFloor(t *testing.T) {
	// Excited mood and a tiny message draw the lowest base; the configured
	// floor must still win.
	c := NewDelayCalculator(stubMood{domain.MoodExcited}, randx.NewSeeded(7), 30000, 600000)
	c.now = func() time.Time {
		return time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC) // evening, 0.8x multiplier
	}
	for i := 0; i < 100; i++ {
		if plan := c.Calculate("blz"); plan.DelayMs < 30000 {
			t.Fatalf("delay %d below configured floor 30000", plan.DelayMs)
		}
	}
}

// ---------------------------------------------------------------------------
// Decision engine
// ---------------------------------------------------------------------------

func TestEngineInstantModeShortCircuits(t *testing.T) {
	e := NewEngine(nil, nil, true)
	d, err := e.Evaluate(context.Background(), "c1", "conv1", "oi?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ShouldRespond || d.DelayMs != 0 || d.TypingDurationMs != 0 {
		t.Errorf("instant mode should respond with zero delays, got %+v", d)
	}
}

func TestEngineSkipProducesNoDelay(t *testing.T) {
	skip := NewSkipEvaluator(
		&stubContacts{},
		&stubMessages{},
		stubMood{domain.MoodNeutral},
		randx.NewSeeded(1),
		"kimy",
		0.12,
	)
	delay := NewDelayCalculator(stubMood{domain.MoodNeutral}, randx.NewSeeded(1), 2000, 600000)
	e := NewEngine(skip, delay, false)

	// single-character message hits the hard "too short" rule
	d, err := e.Evaluate(context.Background(), "c1", "conv1", "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ShouldRespond || d.DelayMs != 0 {
		t.Errorf("expected skip with no delay, got %+v", d)
	}
}

// ---------------------------------------------------------------------------
// Proactive evaluator
// ---------------------------------------------------------------------------

func TestInSleepWindow(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 1, 15, h, m, 0, 0, time.UTC)
	}
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{name: "just after start", t: at(23, 45), want: true},
		{name: "middle of the night", t: at(2, 0), want: true},
		{name: "just before end", t: at(7, 0), want: true},
		{name: "just after end", t: at(8, 0), want: false},
		{name: "evening before start", t: at(22, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inSleepWindow("23:30", "07:30", tt.t); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInSleepWindowNonWrapping(t *testing.T) {
	at := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	if !inSleepWindow("13:00", "15:00", at) {
		t.Error("expected 14:00 inside 13:00-15:00")
	}
	if inSleepWindow("13:00", "15:00", at.Add(2*time.Hour)) {
		t.Error("expected 16:00 outside 13:00-15:00")
	}
}

func newProactiveFixture(state domain.BotState, lastActivity time.Duration) *ProactiveEvaluator {
	now := time.Date(2026, 1, 15, 15, 0, 0, 0, time.UTC)
	contacts := &stubContacts{active: []*domain.Contact{
		{ID: "c1", ChannelKey: "telegram:42", IsActive: true},
	}}
	convos := &stubConversations{lastActivity: map[domain.EntityID]time.Time{
		"c1": now.Add(-lastActivity),
	}}
	e := NewProactiveEvaluator(&stubStates{state: state}, contacts, convos, randx.NewSeeded(21), DefaultTopics(), 2, 8)
	e.now = func() time.Time { return now }
	return e
}

func awakeState() domain.BotState {
	return domain.BotState{
		ID:               domain.BotStateID,
		ProactiveEnabled: true,
		SleepStart:       "23:30",
		SleepEnd:         "07:30",
	}
}

func TestProactiveDisabledYieldsNothing(t *testing.T) {
	state := awakeState()
	state.ProactiveEnabled = false
	e := newProactiveFixture(state, 100*time.Hour)
	got, err := e.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates when disabled, got %d", len(got))
	}
}

func TestProactiveSleepWindowYieldsNothing(t *testing.T) {
	state := awakeState()
	state.SleepStart = "00:00"
	state.SleepEnd = "23:59"
	e := newProactiveFixture(state, 100*time.Hour)
	got, err := e.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates inside sleep window, got %d", len(got))
	}
}

func TestProactiveQuietContactIsNeverPicked(t *testing.T) {
	e := newProactiveFixture(awakeState(), time.Hour) // below the 2h minimum
	for i := 0; i < 200; i++ {
		got, err := e.Evaluate(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Fatal("contact below the minimum interval must never be picked")
		}
	}
}

func TestProactiveLongSilenceIsPickedSometimes(t *testing.T) {
	e := newProactiveFixture(awakeState(), 100*time.Hour) // probability at the 0.3 cap
	picked := 0
	for i := 0; i < 400; i++ {
		got, err := e.Evaluate(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) == 1 {
			picked++
			c := got[0]
			if c.ContactID != "c1" || c.ChannelKey != "telegram:42" {
				t.Fatalf("unexpected candidate %+v", c)
			}
			if PromptFor(DefaultTopics(), c.Topic) == "" {
				t.Fatalf("candidate topic %q has no prompt", c.Topic)
			}
			lead := c.ScheduledAt.Sub(e.now())
			if lead < 5*time.Minute || lead >= 60*time.Minute {
				t.Fatalf("scheduled lead %s out of [5m, 60m)", lead)
			}
		}
	}
	if picked == 0 || picked == 400 {
		t.Errorf("expected a mix of picks at p=0.3, got %d/400", picked)
	}
}

// ---------------------------------------------------------------------------
// Topics
// ---------------------------------------------------------------------------

func TestLoadTopicsEmptyPathReturnsDefaults(t *testing.T) {
	topics, err := LoadTopics("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 8 {
		t.Errorf("expected 8 built-in topics, got %d", len(topics))
	}
}

func TestLoadTopicsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	content := "topics:\n  - name: weather\n    prompt: Comente sobre o tempo.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "weather" {
		t.Errorf("unexpected topics: %+v", topics)
	}
}

func TestLoadTopicsRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	if err := os.WriteFile(path, []byte("topics: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTopics(path); err == nil {
		t.Error("expected error for a file with no topics")
	}
}
