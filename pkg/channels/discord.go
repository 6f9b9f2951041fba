package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kimy-labs/kimy/pkg/bus"
	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
)

// DiscordTransport adapts the Discord gateway to the Transport contract.
type DiscordTransport struct {
	token   string
	session *discordgo.Session
	bus     *bus.MessageBus
}

// NewDiscordTransport creates a Discord transport publishing inbound
// messages to the given bus.
func NewDiscordTransport(token string, mb *bus.MessageBus) *DiscordTransport {
	return &DiscordTransport{token: token, bus: mb}
}

// Type implements Transport.
func (t *DiscordTransport) Type() domain.ChannelType { return domain.ChannelDiscord }

// Start implements Transport.
func (t *DiscordTransport) Start(_ context.Context) error {
	session, err := discordgo.New("Bot " + t.token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}
		if m.Content == "" {
			return
		}
		t.bus.PublishInbound(bus.InboundMessage{
			Channel:    domain.ChannelDiscord,
			ChannelKey: MakeKey(domain.ChannelDiscord, m.ChannelID),
			SenderName: m.Author.Username,
			Text:       m.Content,
			ExternalID: m.ID,
		})
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	t.session = session

	logger.InfoC("discord", "Transport started")
	return nil
}

// Stop implements Transport.
func (t *DiscordTransport) Stop() error {
	if t.session == nil {
		return nil
	}
	return t.session.Close()
}

// SendText implements Transport.
func (t *DiscordTransport) SendText(_ context.Context, channelKey, text string) error {
	_, chatID, err := SplitKey(channelKey)
	if err != nil {
		return err
	}
	if _, err := t.session.ChannelMessageSend(chatID, text); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// SendTyping implements Transport. The gateway expires a typing indicator
// after roughly ten seconds, so it is re-sent for longer durations.
func (t *DiscordTransport) SendTyping(ctx context.Context, channelKey string, duration time.Duration) error {
	_, chatID, err := SplitKey(channelKey)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(duration)
	for {
		if err := t.session.ChannelTyping(chatID); err != nil {
			return fmt.Errorf("discord: channel typing: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		wait := 8 * time.Second
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// MarkAsRead implements Transport. Bots cannot set read receipts on
// Discord, so this is a logged no-op.
func (t *DiscordTransport) MarkAsRead(_ context.Context, channelKey string, messageIDs []string) error {
	logger.DebugCF("discord", "Read receipts unsupported, skipping", map[string]interface{}{
		"channel_key": channelKey,
		"messages":    len(messageIDs),
	})
	return nil
}

// Verify interface compliance at compile time.
var _ Transport = (*DiscordTransport)(nil)
