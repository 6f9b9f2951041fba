package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedContact(t *testing.T, db *sql.DB, channelKey string) *domain.Contact {
	t.Helper()
	c, err := NewContactRepository(db).Upsert(context.Background(), channelKey, "Ana")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func seedConversation(t *testing.T, db *sql.DB, contact *domain.Contact) *domain.Conversation {
	t.Helper()
	conv, err := NewConversationRepository(db).GetOrCreate(context.Background(), contact.ID, contact.ChannelKey)
	if err != nil {
		t.Fatal(err)
	}
	return conv
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

func TestContactUpsertCreatesThenReuses(t *testing.T) {
	db := openTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, "telegram:1", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	if !first.IsActive || first.Name != "Ana" {
		t.Errorf("new contact should be active with the given name, got %+v", first)
	}

	second, err := repo.Upsert(ctx, "telegram:1", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Error("upsert must reuse the existing contact")
	}
	if second.Name != "Ana" {
		t.Error("empty name must not erase the stored name")
	}

	renamed, err := repo.Upsert(ctx, "telegram:1", "Ana Clara")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Name != "Ana Clara" {
		t.Error("non-empty name should update the stored name")
	}
}

func TestContactFindByIDNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := NewContactRepository(db).FindByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindActiveExcludesInactive(t *testing.T) {
	db := openTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	active := seedContact(t, db, "telegram:1")
	inactive := seedContact(t, db, "telegram:2")
	if _, err := db.Exec(`UPDATE contacts SET is_active = 0 WHERE id = ?`, string(inactive.ID)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("expected only the active contact, got %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

func TestGetOrCreateConversationIsStable(t *testing.T) {
	db := openTestDB(t)
	contact := seedContact(t, db, "telegram:1")
	repo := NewConversationRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, contact.ID, contact.ChannelKey)
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.GetOrCreate(ctx, contact.ID, contact.ChannelKey)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Error("GetOrCreate must return the same conversation for the same pair")
	}
}

func TestLastActivityForContact(t *testing.T) {
	db := openTestDB(t)
	contact := seedContact(t, db, "telegram:1")
	repo := NewConversationRepository(db)
	ctx := context.Background()

	at, err := repo.LastActivityForContact(ctx, contact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !at.IsZero() {
		t.Error("contact without conversations should report the zero time")
	}

	conv := seedConversation(t, db, contact)
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.UpdateLastActivity(ctx, conv.ID, stamp); err != nil {
		t.Fatal(err)
	}

	at, err = repo.LastActivityForContact(ctx, contact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !at.Equal(stamp) {
		t.Errorf("expected %s, got %s", stamp, at)
	}
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func seedMessage(t *testing.T, db *sql.DB, conv *domain.Conversation, dir domain.Direction, content string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ConversationID: conv.ID,
		ContactID:      conv.ContactID,
		Direction:      dir,
		Content:        content,
		CreatedAt:      at,
	}
	if err := NewMessageRepository(db).Create(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, seedContact(t, db, "telegram:1"))
	repo := NewMessageRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, db, conv, domain.DirectionInbound, "primeira", base)
	seedMessage(t, db, conv, domain.DirectionOutbound, "segunda", base.Add(time.Minute))
	seedMessage(t, db, conv, domain.DirectionInbound, "terceira", base.Add(2*time.Minute))

	got, err := repo.Recent(context.Background(), conv.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "terceira" || got[1].Content != "segunda" {
		t.Errorf("unexpected recent order: %+v", got)
	}
}

func TestSinceReturnsOldestFirstAfterCutoff(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, seedContact(t, db, "telegram:1"))
	repo := NewMessageRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, db, conv, domain.DirectionInbound, "antiga", base)
	seedMessage(t, db, conv, domain.DirectionInbound, "nova um", base.Add(time.Minute))
	seedMessage(t, db, conv, domain.DirectionInbound, "nova dois", base.Add(2*time.Minute))

	got, err := repo.Since(context.Background(), conv.ID, base, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "nova um" || got[1].Content != "nova dois" {
		t.Errorf("unexpected since result: %+v", got)
	}
}

func TestMarkLastInboundSkippedTargetsNewestInbound(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, seedContact(t, db, "telegram:1"))
	repo := NewMessageRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := seedMessage(t, db, conv, domain.DirectionInbound, "antiga", base)
	newest := seedMessage(t, db, conv, domain.DirectionInbound, "nova", base.Add(time.Minute))
	seedMessage(t, db, conv, domain.DirectionOutbound, "resposta", base.Add(2*time.Minute))

	if err := repo.MarkLastInboundSkipped(context.Background(), conv.ID); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindByID(context.Background(), newest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.WasSkipped {
		t.Error("the newest inbound message should be marked skipped")
	}

	got, err = repo.FindByID(context.Background(), older.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.WasSkipped {
		t.Error("older messages must stay untouched")
	}
}

// ---------------------------------------------------------------------------
// Bot state
// ---------------------------------------------------------------------------

func TestEnsureDefaultCreatesSingletonOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewBotStateRepository(db, BotStateDefaults{
		ProactiveEnabled: true,
		SleepStart:       "22:00",
		SleepEnd:         "06:00",
	})
	ctx := context.Background()

	state, err := repo.EnsureDefault(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.ID != domain.BotStateID || state.Mood != domain.MoodNeutral {
		t.Errorf("unexpected default state %+v", state)
	}
	if state.SleepStart != "22:00" || state.SleepEnd != "06:00" || !state.ProactiveEnabled {
		t.Errorf("defaults not applied: %+v", state)
	}

	if err := repo.SetMood(ctx, domain.MoodBusy, domain.Now()); err != nil {
		t.Fatal(err)
	}
	state, err = repo.EnsureDefault(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Mood != domain.MoodBusy {
		t.Error("EnsureDefault must not overwrite an existing row")
	}
}

// ---------------------------------------------------------------------------
// Contact memory
// ---------------------------------------------------------------------------

func TestTrackOutboundCountsAndSaveFactsResets(t *testing.T) {
	db := openTestDB(t)
	repo := NewContactMemoryRepository(db)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := repo.TrackOutbound(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected count %d, got %d", want, got)
		}
	}

	if err := repo.SaveFacts(ctx, "c1", "mora em BH", "m9"); err != nil {
		t.Fatal(err)
	}

	mem, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if mem.Facts != "mora em BH" || mem.LastProcessedMessageID != "m9" {
		t.Errorf("unexpected memory %+v", mem)
	}
	if mem.MessageCountSinceUpdate != 0 {
		t.Errorf("SaveFacts must reset the counter, got %d", mem.MessageCountSinceUpdate)
	}

	count, err := repo.TrackOutbound(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("counting should restart after a save, got %d", count)
	}
}

func TestContactMemoryGetNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := NewContactMemoryRepository(db).Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
