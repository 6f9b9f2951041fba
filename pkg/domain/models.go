package domain

import "time"

// ---------------------------------------------------------------------------
// Aggregates — persisted through the repository contracts below
// ---------------------------------------------------------------------------

// Contact is one person the bot talks to, identified by their channel key
// (the stable two-party chat identifier, e.g. "telegram:<chatID>").
type Contact struct {
	ID              EntityID  `json:"id"`
	ChannelKey      string    `json:"channel_key"`
	Name            string    `json:"name,omitempty"`
	IsActive        bool      `json:"is_active"`
	SkipProbability float64   `json:"skip_probability"` // per-contact override, 0 = use global
	CreatedAt       time.Time `json:"created_at"`
}

// Conversation is one ongoing chat with a contact on a channel.
type Conversation struct {
	ID           EntityID  `json:"id"`
	ContactID    EntityID  `json:"contact_id"`
	ChannelKey   string    `json:"channel_key"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is a single persisted turn. Inbound messages are written through
// before debounce buffering, so nothing is lost on restart.
type Message struct {
	ID             EntityID  `json:"id"`
	ConversationID EntityID  `json:"conversation_id"`
	ContactID      EntityID  `json:"contact_id"`
	Direction      Direction `json:"direction"`
	Content        string    `json:"content"`
	ExternalID     string    `json:"external_id,omitempty"` // transport message ID, for read receipts
	WasSkipped     bool      `json:"was_skipped"`
	IsProactive    bool      `json:"is_proactive"`
	DelayMs        int64     `json:"delay_ms,omitempty"` // applied response delay, for outbound
	CreatedAt      time.Time `json:"created_at"`
}

// BotStateID is the fixed ID of the single BotState row.
const BotStateID = "singleton"

// BotState is the process-wide singleton holding the current mood and the
// proactive-messaging settings. Created with defaults at startup if absent;
// the mood field has a single writer (the mood state machine).
type BotState struct {
	ID               string    `json:"id"`
	Mood             Mood      `json:"mood"`
	LastMoodChange   time.Time `json:"last_mood_change"`
	ProactiveEnabled bool      `json:"proactive_enabled"`
	SleepStart       string    `json:"sleep_start"` // "HH:MM", 24h
	SleepEnd         string    `json:"sleep_end"`
}

// ContactMemory accumulates long-lived facts about a contact plus the
// counter that decides when facts are re-extracted.
type ContactMemory struct {
	ContactID               EntityID  `json:"contact_id"`
	Facts                   string    `json:"facts"`
	MessageCountSinceUpdate int       `json:"message_count_since_update"`
	LastProcessedMessageID  EntityID  `json:"last_processed_message_id,omitempty"`
	UpdatedAt               time.Time `json:"updated_at"`
}
