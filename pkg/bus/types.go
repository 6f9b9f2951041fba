package bus

import "github.com/kimy-labs/kimy/pkg/domain"

// InboundMessage is one raw message event published by a transport adapter.
// The channel key is the stable identifier of the two-party chat and is the
// debounce partition key downstream.
type InboundMessage struct {
	Channel    domain.ChannelType `json:"channel"`
	ChannelKey string             `json:"channel_key"`
	SenderName string             `json:"sender_name,omitempty"`
	Text       string             `json:"text"`
	ExternalID string             `json:"external_id,omitempty"`
}
