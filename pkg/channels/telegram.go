package channels

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/kimy-labs/kimy/pkg/bus"
	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
)

// TelegramTransport adapts the Telegram Bot API to the Transport contract.
type TelegramTransport struct {
	token string
	bot   *telego.Bot
	bus   *bus.MessageBus
	stop  context.CancelFunc
}

// NewTelegramTransport creates a Telegram transport publishing inbound
// messages to the given bus.
func NewTelegramTransport(token string, mb *bus.MessageBus) *TelegramTransport {
	return &TelegramTransport{token: token, bus: mb}
}

// Type implements Transport.
func (t *TelegramTransport) Type() domain.ChannelType { return domain.ChannelTelegram }

// Start implements Transport. It long-polls for updates until ctx is done.
func (t *TelegramTransport) Start(ctx context.Context) error {
	bot, err := telego.NewBot(t.token, telego.WithDefaultLogger(false, true))
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot

	ctx, cancel := context.WithCancel(ctx)
	t.stop = cancel

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	go func() {
		for update := range updates {
			msg := update.Message
			if msg == nil || msg.Text == "" {
				continue
			}
			if msg.From != nil && msg.From.IsBot {
				continue
			}
			name := ""
			if msg.From != nil {
				name = msg.From.FirstName
			}
			t.bus.PublishInbound(bus.InboundMessage{
				Channel:    domain.ChannelTelegram,
				ChannelKey: MakeKey(domain.ChannelTelegram, strconv.FormatInt(msg.Chat.ID, 10)),
				SenderName: name,
				Text:       msg.Text,
				ExternalID: strconv.Itoa(msg.MessageID),
			})
		}
	}()

	logger.InfoC("telegram", "Transport started")
	return nil
}

// Stop implements Transport.
func (t *TelegramTransport) Stop() error {
	if t.stop != nil {
		t.stop()
	}
	return nil
}

// SendText implements Transport.
func (t *TelegramTransport) SendText(ctx context.Context, channelKey, text string) error {
	chatID, err := t.chatID(channelKey)
	if err != nil {
		return err
	}
	_, err = t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// SendTyping implements Transport. Telegram expires a typing action after a
// few seconds, so it is re-sent until the requested duration elapses.
func (t *TelegramTransport) SendTyping(ctx context.Context, channelKey string, duration time.Duration) error {
	chatID, err := t.chatID(channelKey)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(duration)
	for {
		if err := t.bot.SendChatAction(ctx, &telego.SendChatActionParams{
			ChatID: telego.ChatID{ID: chatID},
			Action: telego.ChatActionTyping,
		}); err != nil {
			return fmt.Errorf("telegram: send chat action: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		wait := 4 * time.Second
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

// MarkAsRead implements Transport. The Bot API has no read-receipt call, so
// this is a logged no-op.
func (t *TelegramTransport) MarkAsRead(_ context.Context, channelKey string, messageIDs []string) error {
	logger.DebugCF("telegram", "Read receipts unsupported, skipping", map[string]interface{}{
		"channel_key": channelKey,
		"messages":    len(messageIDs),
	})
	return nil
}

func (t *TelegramTransport) chatID(channelKey string) (int64, error) {
	_, raw, err := SplitKey(channelKey)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: bad chat ID in key %q: %w", channelKey, err)
	}
	return id, nil
}

// Verify interface compliance at compile time.
var _ Transport = (*TelegramTransport)(nil)
