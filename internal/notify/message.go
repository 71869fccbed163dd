// Package notify decouples alert producers from channel providers with a
// queue and a single background dispatch worker.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Channel names a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Message is one notification to deliver. Metadata is open ended; providers
// read string hints from it such as "device_token" and "platform" for push.
type Message struct {
	Channel   Channel        `json:"channel"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject,omitempty"`
	Body      string         `json:"body,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Marshal encodes m as a single line of JSON.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage decodes a queue payload.
func UnmarshalMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	if m.Channel == "" || m.Recipient == "" {
		return Message{}, errors.New("decode notification: channel and recipient are required")
	}
	return m, nil
}

// Meta returns the metadata value under key when it is a string.
func (m Message) Meta(key string) string {
	s, _ := m.Metadata[key].(string)
	return s
}
