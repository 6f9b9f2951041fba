// Package channels implements the message-transport collaborators. A
// transport receives raw chat messages and publishes them on the bus, and
// exposes the outbound operations the job processors need: send text, show
// a typing indicator, mark messages as read. Outbound failures are logged
// by callers; the core treats them as fire-and-forget.
package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
)

// Transport is the contract between the core and one chat network.
type Transport interface {
	// Type identifies the channel kind, which is also the key prefix.
	Type() domain.ChannelType
	// Start connects and begins publishing inbound messages until ctx is done.
	Start(ctx context.Context) error
	// Stop disconnects.
	Stop() error

	SendText(ctx context.Context, channelKey, text string) error
	SendTyping(ctx context.Context, channelKey string, duration time.Duration) error
	MarkAsRead(ctx context.Context, channelKey string, messageIDs []string) error
}

// ---------------------------------------------------------------------------
// Channel keys
// ---------------------------------------------------------------------------

// MakeKey builds the stable channel key for a chat: "<channel>:<chat id>".
func MakeKey(ct domain.ChannelType, chatID string) string {
	return string(ct) + ":" + chatID
}

// SplitKey splits a channel key into channel type and chat ID.
func SplitKey(channelKey string) (domain.ChannelType, string, error) {
	idx := strings.IndexByte(channelKey, ':')
	if idx <= 0 || idx == len(channelKey)-1 {
		return "", "", fmt.Errorf("channels: malformed channel key %q", channelKey)
	}
	return domain.ChannelType(channelKey[:idx]), channelKey[idx+1:], nil
}

// ---------------------------------------------------------------------------
// Registry — routes a channel key to the transport that owns it
// ---------------------------------------------------------------------------

// Registry holds the active transports keyed by channel type.
type Registry struct {
	mu         sync.RWMutex
	transports map[domain.ChannelType]Transport
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[domain.ChannelType]Transport)}
}

// Register adds a transport. Later registrations replace earlier ones.
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Type()] = t
}

// ForKey resolves the transport owning the given channel key.
func (r *Registry) ForKey(channelKey string) (Transport, error) {
	ct, _, err := SplitKey(channelKey)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[ct]
	if !ok {
		return nil, fmt.Errorf("channels: no transport registered for %q", ct)
	}
	return t, nil
}

// All returns the registered transports.
func (r *Registry) All() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transport, 0, len(r.transports))
	for _, t := range r.transports {
		out = append(out, t)
	}
	return out
}
