package channels

import (
	"testing"

	"github.com/kimy-labs/kimy/pkg/domain"
)

func TestMakeAndSplitKey(t *testing.T) {
	tests := []struct {
		name     string
		channel  domain.ChannelType
		chatID   string
		wantKey  string
	}{
		{name: "telegram", channel: domain.ChannelTelegram, chatID: "12345", wantKey: "telegram:12345"},
		{name: "discord", channel: domain.ChannelDiscord, chatID: "98765", wantKey: "discord:98765"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := MakeKey(tt.channel, tt.chatID)
			if key != tt.wantKey {
				t.Fatalf("expected key %s, got %s", tt.wantKey, key)
			}
			ct, id, err := SplitKey(key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ct != tt.channel || id != tt.chatID {
				t.Errorf("round trip mismatch: got %s/%s", ct, id)
			}
		})
	}
}

func TestSplitKeyMalformed(t *testing.T) {
	for _, key := range []string{"", "telegram", ":123", "telegram:"} {
		if _, _, err := SplitKey(key); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestRegistryResolvesByPrefix(t *testing.T) {
	reg := NewRegistry()
	tg := &TelegramTransport{}
	reg.Register(tg)

	got, err := reg.ForKey("telegram:42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Transport(tg) {
		t.Error("expected telegram transport")
	}

	if _, err := reg.ForKey("discord:42"); err == nil {
		t.Error("expected error for unregistered channel")
	}
}
