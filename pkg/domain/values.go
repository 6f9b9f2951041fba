package domain

// ---------------------------------------------------------------------------
// Shared value objects — used across bounded contexts
// ---------------------------------------------------------------------------

// Mood is the bot's coarse behavioral state. It modulates response delays
// and the willingness to respond at all.
type Mood string

const (
	MoodNeutral Mood = "neutral"
	MoodExcited Mood = "excited"
	MoodTired   Mood = "tired"
	MoodBusy    Mood = "busy"
)

// AllMoods returns all known moods.
func AllMoods() []Mood {
	return []Mood{MoodNeutral, MoodExcited, MoodTired, MoodBusy}
}

// String implements fmt.Stringer.
func (m Mood) String() string { return string(m) }

// Valid returns true if the mood is recognized.
func (m Mood) Valid() bool {
	for _, mm := range AllMoods() {
		if mm == m {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------

// Direction indicates whether a message came from the contact or from the bot.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) String() string { return string(d) }

// ---------------------------------------------------------------------------

// ChannelType represents the kind of messaging transport.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
)

func (ct ChannelType) String() string { return string(ct) }

// ---------------------------------------------------------------------------

// MessageRole represents who authored a turn in an LLM conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

func (mr MessageRole) String() string { return string(mr) }

// ---------------------------------------------------------------------------
// Queue and job names — the contract between scheduler and processors
// ---------------------------------------------------------------------------

const (
	QueueResponse  = "response-queue"
	QueueTyping    = "typing-queue"
	QueueProactive = "proactive-queue"

	JobSendResponse      = "send-response"
	JobShowTyping        = "show-typing"
	JobMarkAsRead        = "mark-as-read"
	JobSendProactive     = "send-proactive"
	JobEvaluateProactive = "evaluate-proactive"
)
