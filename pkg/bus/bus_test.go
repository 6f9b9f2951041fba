package bus

import (
	"context"
	"testing"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
)

func inbound(text string) InboundMessage {
	return InboundMessage{
		Channel:    domain.ChannelTelegram,
		ChannelKey: "telegram:1",
		Text:       text,
	}
}

func consumeWithTimeout(t *testing.T, mb *MessageBus) (InboundMessage, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	return mb.ConsumeInbound(ctx)
}

func TestPublishThenConsumeKeepsOrder(t *testing.T) {
	mb := New(4)
	mb.PublishInbound(inbound("primeira"))
	mb.PublishInbound(inbound("segunda"))

	for _, want := range []string{"primeira", "segunda"} {
		msg, ok := consumeWithTimeout(t, mb)
		if !ok {
			t.Fatal("expected a buffered message")
		}
		if msg.Text != want {
			t.Errorf("expected %q, got %q", want, msg.Text)
		}
	}
}

func TestFullBufferDropsOldest(t *testing.T) {
	mb := New(2)
	mb.PublishInbound(inbound("um"))
	mb.PublishInbound(inbound("dois"))
	mb.PublishInbound(inbound("tres"))

	msg, ok := consumeWithTimeout(t, mb)
	if !ok {
		t.Fatal("expected a buffered message")
	}
	if msg.Text != "dois" {
		t.Errorf("oldest message should be dropped first, got %q", msg.Text)
	}
	msg, ok = consumeWithTimeout(t, mb)
	if !ok || msg.Text != "tres" {
		t.Errorf("newest message must survive, got %q (ok=%v)", msg.Text, ok)
	}
}

func TestConsumeReturnsFalseOnCanceledContext(t *testing.T) {
	mb := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("expected ok=false on a canceled context")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	mb := New(4)
	mb.Close()
	mb.PublishInbound(inbound("tarde demais"))

	if _, ok := consumeWithTimeout(t, mb); ok {
		t.Error("messages published after Close must be dropped")
	}
}
