package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/providers"
)

type stubMemories struct {
	mu     sync.Mutex
	mem    *domain.ContactMemory
	count  int
	saved  chan struct{}
	savedF string
}

func newStubMemories() *stubMemories {
	return &stubMemories{saved: make(chan struct{}, 1)}
}

func (s *stubMemories) Get(_ context.Context, _ domain.EntityID) (*domain.ContactMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return nil, domain.ErrNotFound
	}
	m := *s.mem
	return &m, nil
}

func (s *stubMemories) TrackOutbound(_ context.Context, _ domain.EntityID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.count, nil
}

func (s *stubMemories) SaveFacts(_ context.Context, contactID domain.EntityID, facts string, lastProcessed domain.EntityID) error {
	s.mu.Lock()
	s.mem = &domain.ContactMemory{
		ContactID:              contactID,
		Facts:                  facts,
		LastProcessedMessageID: lastProcessed,
	}
	s.savedF = facts
	s.mu.Unlock()
	select {
	case s.saved <- struct{}{}:
	default:
	}
	return nil
}

type stubMessages struct{ since []*domain.Message }

func (s *stubMessages) Create(_ context.Context, _ *domain.Message) error { return nil }
func (s *stubMessages) Recent(_ context.Context, _ domain.EntityID, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (s *stubMessages) Since(_ context.Context, _ domain.EntityID, _ time.Time, _ int) ([]*domain.Message, error) {
	return s.since, nil
}
func (s *stubMessages) FindByID(_ context.Context, _ domain.EntityID) (*domain.Message, error) {
	return nil, domain.ErrNotFound
}
func (s *stubMessages) MarkLastInboundSkipped(_ context.Context, _ domain.EntityID) error {
	return nil
}

type stubProvider struct {
	mu       sync.Mutex
	requests []providers.GenerateRequest
	response string
}

func (p *stubProvider) Generate(_ context.Context, req providers.GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.response, nil
}

func (p *stubProvider) SupportsTools() bool { return false }
func (p *stubProvider) Name() string        { return "stub" }

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func turn(id string, dir domain.Direction, content string) *domain.Message {
	return &domain.Message{
		ID:        domain.EntityID(id),
		Direction: dir,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func TestUpdateSkipsWithTooFewMessages(t *testing.T) {
	mems := newStubMemories()
	prov := &stubProvider{response: "mora em BH"}
	tr := NewTracker(mems, &stubMessages{since: []*domain.Message{
		turn("m1", domain.DirectionInbound, "oi"),
		turn("m2", domain.DirectionOutbound, "oi, tudo bem?"),
	}}, prov, "kimy", 10)

	if err := tr.Update(context.Background(), "c1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prov.callCount() != 0 {
		t.Error("provider must not be called with fewer than three messages")
	}
}

func TestUpdateExtractsAndSavesFacts(t *testing.T) {
	mems := newStubMemories()
	prov := &stubProvider{response: "  mora em BH\ntem uma gata  "}
	tr := NewTracker(mems, &stubMessages{since: []*domain.Message{
		turn("m1", domain.DirectionInbound, "mudei pra BH"),
		turn("m2", domain.DirectionOutbound, "serio? que legal"),
		turn("m3", domain.DirectionInbound, "sim, e adotei uma gata"),
	}}, prov, "kimy", 10)

	if err := tr.Update(context.Background(), "c1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prov.callCount() != 1 {
		t.Fatalf("expected one provider call, got %d", prov.callCount())
	}
	req := prov.requests[0]
	if !strings.Contains(req.UserMessage, "Pessoa: mudei pra BH") {
		t.Error("extraction prompt missing the inbound turn")
	}
	if !strings.Contains(req.UserMessage, "kimy: serio? que legal") {
		t.Error("extraction prompt missing the outbound turn")
	}

	if mems.mem == nil {
		t.Fatal("expected facts to be saved")
	}
	if mems.mem.Facts != "mora em BH\ntem uma gata" {
		t.Errorf("expected trimmed facts, got %q", mems.mem.Facts)
	}
	if mems.mem.LastProcessedMessageID != "m3" {
		t.Errorf("expected last processed m3, got %s", mems.mem.LastProcessedMessageID)
	}
}

func TestUpdateIncludesExistingFacts(t *testing.T) {
	mems := newStubMemories()
	mems.mem = &domain.ContactMemory{ContactID: "c1", Facts: "gosta de acai"}
	prov := &stubProvider{response: "gosta de acai\nmora em BH"}
	tr := NewTracker(mems, &stubMessages{since: []*domain.Message{
		turn("m1", domain.DirectionInbound, "a"),
		turn("m2", domain.DirectionInbound, "b"),
		turn("m3", domain.DirectionInbound, "c"),
	}}, prov, "kimy", 10)

	if err := tr.Update(context.Background(), "c1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prov.requests[0].UserMessage, "gosta de acai") {
		t.Error("extraction prompt missing the existing facts")
	}
}

func TestTrackOutboundTriggersUpdateAtThreshold(t *testing.T) {
	mems := newStubMemories()
	prov := &stubProvider{response: "mora em BH"}
	tr := NewTracker(mems, &stubMessages{since: []*domain.Message{
		turn("m1", domain.DirectionInbound, "a"),
		turn("m2", domain.DirectionInbound, "b"),
		turn("m3", domain.DirectionInbound, "c"),
	}}, prov, "kimy", 3)

	ctx := context.Background()
	tr.TrackOutbound(ctx, "c1", "v1")
	tr.TrackOutbound(ctx, "c1", "v1")
	if prov.callCount() != 0 {
		t.Fatal("update must not run below the threshold")
	}

	tr.TrackOutbound(ctx, "c1", "v1")
	select {
	case <-mems.saved:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the threshold update")
	}
	if mems.savedF != "mora em BH" {
		t.Errorf("unexpected saved facts %q", mems.savedF)
	}
}

func TestFactsReturnsEmptyWhenAbsent(t *testing.T) {
	tr := NewTracker(newStubMemories(), &stubMessages{}, &stubProvider{}, "kimy", 10)
	if got := tr.Facts(context.Background(), "c1"); got != "" {
		t.Errorf("expected empty facts, got %q", got)
	}
}
