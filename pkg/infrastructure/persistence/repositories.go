package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
)

// ---------------------------------------------------------------------------
// ContactRepository
// ---------------------------------------------------------------------------

// ContactRepository is the SQLite implementation of domain.ContactRepository.
type ContactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a contact repository.
func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) FindByID(ctx context.Context, id domain.EntityID) (*domain.Contact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, channel_key, name, is_active, skip_probability, created_at
		 FROM contacts WHERE id = ?`, string(id))
	return scanContact(row)
}

func (r *ContactRepository) FindByChannelKey(ctx context.Context, channelKey string) (*domain.Contact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, channel_key, name, is_active, skip_probability, created_at
		 FROM contacts WHERE channel_key = ?`, channelKey)
	return scanContact(row)
}

func (r *ContactRepository) Upsert(ctx context.Context, channelKey, name string) (*domain.Contact, error) {
	existing, err := r.FindByChannelKey(ctx, channelKey)
	switch {
	case err == nil:
		if name != "" && name != existing.Name {
			if _, err := r.db.ExecContext(ctx,
				`UPDATE contacts SET name = ? WHERE id = ?`, name, string(existing.ID)); err != nil {
				return nil, fmt.Errorf("persistence: update contact name: %w", err)
			}
			existing.Name = name
		}
		return existing, nil
	case errors.Is(err, domain.ErrNotFound):
		c := &domain.Contact{
			ID:         domain.NewID(),
			ChannelKey: channelKey,
			Name:       name,
			IsActive:   true,
			CreatedAt:  domain.Now(),
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO contacts (id, channel_key, name, is_active, skip_probability, created_at)
			 VALUES (?, ?, ?, 1, 0, ?)`,
			string(c.ID), c.ChannelKey, c.Name, c.CreatedAt); err != nil {
			return nil, fmt.Errorf("persistence: insert contact: %w", err)
		}
		return c, nil
	default:
		return nil, err
	}
}

func (r *ContactRepository) FindActive(ctx context.Context) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, channel_key, name, is_active, skip_probability, created_at
		 FROM contacts WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("persistence: query active contacts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(s scanner) (*domain.Contact, error) {
	var c domain.Contact
	var id string
	err := s.Scan(&id, &c.ChannelKey, &c.Name, &c.IsActive, &c.SkipProbability, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: scan contact: %w", err)
	}
	c.ID = domain.EntityID(id)
	return &c, nil
}

// ---------------------------------------------------------------------------
// ConversationRepository
// ---------------------------------------------------------------------------

// ConversationRepository is the SQLite implementation of
// domain.ConversationRepository.
type ConversationRepository struct {
	db *sql.DB
}

// NewConversationRepository creates a conversation repository.
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) FindByID(ctx context.Context, id domain.EntityID) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, contact_id, channel_key, last_activity, created_at
		 FROM conversations WHERE id = ?`, string(id))
	return scanConversation(row)
}

func (r *ConversationRepository) GetOrCreate(ctx context.Context, contactID domain.EntityID, channelKey string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, contact_id, channel_key, last_activity, created_at
		 FROM conversations WHERE contact_id = ? AND channel_key = ?`,
		string(contactID), channelKey)
	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := domain.Now()
	conv = &domain.Conversation{
		ID:           domain.NewID(),
		ContactID:    contactID,
		ChannelKey:   channelKey,
		LastActivity: now,
		CreatedAt:    now,
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, contact_id, channel_key, last_activity, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(conv.ID), string(conv.ContactID), conv.ChannelKey, conv.LastActivity, conv.CreatedAt); err != nil {
		return nil, fmt.Errorf("persistence: insert conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepository) UpdateLastActivity(ctx context.Context, id domain.EntityID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity = ? WHERE id = ?`, at.UTC(), string(id))
	if err != nil {
		return fmt.Errorf("persistence: update last activity: %w", err)
	}
	return nil
}

func (r *ConversationRepository) LastActivityForContact(ctx context.Context, contactID domain.EntityID) (time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT last_activity FROM conversations
		 WHERE contact_id = ? ORDER BY last_activity DESC LIMIT 1`,
		string(contactID)).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("persistence: query last activity: %w", err)
	}
	return at, nil
}

func scanConversation(s scanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var id, contactID string
	err := s.Scan(&id, &contactID, &c.ChannelKey, &c.LastActivity, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: scan conversation: %w", err)
	}
	c.ID = domain.EntityID(id)
	c.ContactID = domain.EntityID(contactID)
	return &c, nil
}

// ---------------------------------------------------------------------------
// MessageRepository
// ---------------------------------------------------------------------------

// MessageRepository is the SQLite implementation of domain.MessageRepository.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID.IsZero() {
		msg.ID = domain.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = domain.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages
		 (id, conversation_id, contact_id, direction, content, external_id, was_skipped, is_proactive, delay_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.ConversationID), string(msg.ContactID),
		string(msg.Direction), msg.Content, msg.ExternalID,
		msg.WasSkipped, msg.IsProactive, msg.DelayMs, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("persistence: insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) Recent(ctx context.Context, conversationID domain.EntityID, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, contact_id, direction, content, external_id, was_skipped, is_proactive, delay_ms, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		string(conversationID), limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: query recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepository) Since(ctx context.Context, conversationID domain.EntityID, after time.Time, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, contact_id, direction, content, external_id, was_skipped, is_proactive, delay_ms, created_at
		 FROM messages WHERE conversation_id = ? AND created_at > ?
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		string(conversationID), after.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: query messages since: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepository) FindByID(ctx context.Context, id domain.EntityID) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, contact_id, direction, content, external_id, was_skipped, is_proactive, delay_ms, created_at
		 FROM messages WHERE id = ?`, string(id))
	return scanMessage(row)
}

func (r *MessageRepository) MarkLastInboundSkipped(ctx context.Context, conversationID domain.EntityID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET was_skipped = 1
		 WHERE id = (SELECT id FROM messages
		             WHERE conversation_id = ? AND direction = ?
		             ORDER BY created_at DESC, rowid DESC LIMIT 1)`,
		string(conversationID), string(domain.DirectionInbound))
	if err != nil {
		return fmt.Errorf("persistence: mark last inbound skipped: %w", err)
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]*domain.Message, error) {
	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(s scanner) (*domain.Message, error) {
	var m domain.Message
	var id, convID, contactID, direction string
	err := s.Scan(&id, &convID, &contactID, &direction, &m.Content, &m.ExternalID,
		&m.WasSkipped, &m.IsProactive, &m.DelayMs, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: scan message: %w", err)
	}
	m.ID = domain.EntityID(id)
	m.ConversationID = domain.EntityID(convID)
	m.ContactID = domain.EntityID(contactID)
	m.Direction = domain.Direction(direction)
	return &m, nil
}

// ---------------------------------------------------------------------------
// BotStateRepository
// ---------------------------------------------------------------------------

// BotStateDefaults are applied when the singleton row is first created.
type BotStateDefaults struct {
	ProactiveEnabled bool
	SleepStart       string
	SleepEnd         string
}

// BotStateRepository is the SQLite implementation of domain.BotStateRepository.
type BotStateRepository struct {
	db       *sql.DB
	defaults BotStateDefaults
}

// NewBotStateRepository creates a bot-state repository with the defaults
// used when the singleton row does not exist yet.
func NewBotStateRepository(db *sql.DB, defaults BotStateDefaults) *BotStateRepository {
	if defaults.SleepStart == "" {
		defaults.SleepStart = "23:30"
	}
	if defaults.SleepEnd == "" {
		defaults.SleepEnd = "07:30"
	}
	return &BotStateRepository{db: db, defaults: defaults}
}

func (r *BotStateRepository) EnsureDefault(ctx context.Context) (*domain.BotState, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO bot_state (id, mood, last_mood_change, proactive_enabled, sleep_start, sleep_end)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		domain.BotStateID, string(domain.MoodNeutral), domain.Now(),
		r.defaults.ProactiveEnabled, r.defaults.SleepStart, r.defaults.SleepEnd)
	if err != nil {
		return nil, fmt.Errorf("persistence: ensure bot state: %w", err)
	}
	return r.Get(ctx)
}

func (r *BotStateRepository) Get(ctx context.Context) (*domain.BotState, error) {
	var st domain.BotState
	var mood string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, mood, last_mood_change, proactive_enabled, sleep_start, sleep_end
		 FROM bot_state WHERE id = ?`, domain.BotStateID).
		Scan(&st.ID, &mood, &st.LastMoodChange, &st.ProactiveEnabled, &st.SleepStart, &st.SleepEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: query bot state: %w", err)
	}
	st.Mood = domain.Mood(mood)
	return &st, nil
}

func (r *BotStateRepository) SetMood(ctx context.Context, mood domain.Mood, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bot_state SET mood = ?, last_mood_change = ? WHERE id = ?`,
		string(mood), at.UTC(), domain.BotStateID)
	if err != nil {
		return fmt.Errorf("persistence: set mood: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// ContactMemoryRepository
// ---------------------------------------------------------------------------

// ContactMemoryRepository is the SQLite implementation of
// domain.ContactMemoryRepository.
type ContactMemoryRepository struct {
	db *sql.DB
}

// NewContactMemoryRepository creates a contact-memory repository.
func NewContactMemoryRepository(db *sql.DB) *ContactMemoryRepository {
	return &ContactMemoryRepository{db: db}
}

func (r *ContactMemoryRepository) Get(ctx context.Context, contactID domain.EntityID) (*domain.ContactMemory, error) {
	var m domain.ContactMemory
	var id, lastID string
	err := r.db.QueryRowContext(ctx,
		`SELECT contact_id, facts, message_count, last_processed_message_id, updated_at
		 FROM contact_memory WHERE contact_id = ?`, string(contactID)).
		Scan(&id, &m.Facts, &m.MessageCountSinceUpdate, &lastID, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: query contact memory: %w", err)
	}
	m.ContactID = domain.EntityID(id)
	m.LastProcessedMessageID = domain.EntityID(lastID)
	return &m, nil
}

func (r *ContactMemoryRepository) TrackOutbound(ctx context.Context, contactID domain.EntityID) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_memory (contact_id, facts, message_count, last_processed_message_id, updated_at)
		 VALUES (?, '', 1, '', ?)
		 ON CONFLICT(contact_id) DO UPDATE SET message_count = message_count + 1`,
		string(contactID), domain.Now())
	if err != nil {
		return 0, fmt.Errorf("persistence: track outbound: %w", err)
	}
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT message_count FROM contact_memory WHERE contact_id = ?`,
		string(contactID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("persistence: read message count: %w", err)
	}
	return count, nil
}

func (r *ContactMemoryRepository) SaveFacts(ctx context.Context, contactID domain.EntityID, facts string, lastProcessed domain.EntityID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_memory (contact_id, facts, message_count, last_processed_message_id, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(contact_id) DO UPDATE SET
		 	facts = excluded.facts,
		 	message_count = 0,
		 	last_processed_message_id = excluded.last_processed_message_id,
		 	updated_at = excluded.updated_at`,
		string(contactID), facts, string(lastProcessed), domain.Now())
	if err != nil {
		return fmt.Errorf("persistence: save facts: %w", err)
	}
	return nil
}

// Verify interface compliance at compile time.
var (
	_ domain.ContactRepository       = (*ContactRepository)(nil)
	_ domain.ConversationRepository  = (*ConversationRepository)(nil)
	_ domain.MessageRepository       = (*MessageRepository)(nil)
	_ domain.BotStateRepository      = (*BotStateRepository)(nil)
	_ domain.ContactMemoryRepository = (*ContactMemoryRepository)(nil)
)
