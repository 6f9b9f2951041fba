package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when an entity does not exist.
// Callers that can proceed without the entity must treat it as a
// validation/state condition, not a transient failure.
var ErrNotFound = errors.New("domain: not found")

// ---------------------------------------------------------------------------
// Repository contracts — persistence is a collaborator, not a core concern
// ---------------------------------------------------------------------------

// ContactRepository persists contacts keyed by ID and channel key.
type ContactRepository interface {
	FindByID(ctx context.Context, id EntityID) (*Contact, error)
	FindByChannelKey(ctx context.Context, channelKey string) (*Contact, error)
	// Upsert creates the contact for channelKey if absent, updating the name
	// when a non-empty one is provided. New contacts start active.
	Upsert(ctx context.Context, channelKey, name string) (*Contact, error)
	// FindActive returns all contacts eligible for proactive messages.
	FindActive(ctx context.Context) ([]*Contact, error)
}

// ConversationRepository persists conversations.
type ConversationRepository interface {
	FindByID(ctx context.Context, id EntityID) (*Conversation, error)
	// GetOrCreate returns the conversation for (contactID, channelKey),
	// creating it if absent.
	GetOrCreate(ctx context.Context, contactID EntityID, channelKey string) (*Conversation, error)
	UpdateLastActivity(ctx context.Context, id EntityID, at time.Time) error
	// LastActivityForContact returns the most recent conversation activity
	// for the contact, or the zero time if the contact has no conversations.
	LastActivityForContact(ctx context.Context, contactID EntityID) (time.Time, error)
}

// MessageRepository persists individual message turns.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	// Recent returns up to limit messages for the conversation, newest first.
	Recent(ctx context.Context, conversationID EntityID, limit int) ([]*Message, error)
	// Since returns up to limit messages created after the given time,
	// oldest first. A zero time means "from the beginning".
	Since(ctx context.Context, conversationID EntityID, after time.Time, limit int) ([]*Message, error)
	FindByID(ctx context.Context, id EntityID) (*Message, error)
	// MarkLastInboundSkipped flags the newest inbound message of the
	// conversation as deliberately skipped.
	MarkLastInboundSkipped(ctx context.Context, conversationID EntityID) error
}

// BotStateRepository persists the BotState singleton.
type BotStateRepository interface {
	// EnsureDefault creates the singleton row with defaults if it does not
	// exist and returns the current state.
	EnsureDefault(ctx context.Context) (*BotState, error)
	Get(ctx context.Context) (*BotState, error)
	SetMood(ctx context.Context, mood Mood, at time.Time) error
}

// ContactMemoryRepository persists per-contact long-term memory.
type ContactMemoryRepository interface {
	Get(ctx context.Context, contactID EntityID) (*ContactMemory, error)
	// TrackOutbound increments the message counter, creating the row if
	// needed, and returns the new count.
	TrackOutbound(ctx context.Context, contactID EntityID) (int, error)
	// SaveFacts replaces the stored facts, records the last processed
	// message, and resets the counter.
	SaveFacts(ctx context.Context, contactID EntityID, facts string, lastProcessed EntityID) error
}
