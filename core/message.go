package core

import (
	"time"

	"github.com/google/uuid"
)

// ChannelType distinguishes the two pub/sub channel families. Topics are
// hierarchical many-to-many channels; events are named notifications that
// are conventionally skill-scoped but share dispatch semantics.
type ChannelType string

const (
	// ChannelTopic addresses a hierarchical pub/sub topic.
	ChannelTopic ChannelType = "topic"
	// ChannelEvent addresses a named notification channel.
	ChannelEvent ChannelType = "event"
)

// Valid reports whether t is one of the known channel types.
func (t ChannelType) Valid() bool { return t == ChannelTopic || t == ChannelEvent }

// SenderInfo carries metadata about the originator of a message, handed to
// topic/event handlers as the "from" argument.
type SenderInfo struct {
	ID   string
	Name string
}

// Message is the ephemeral unit of dispatch. It exists only for the
// duration of one publish fan-out and is never stored. After construction
// it should be treated as immutable.
type Message struct {
	ID        string
	Type      ChannelType
	Channel   string
	Payload   Value
	Sender    *SenderInfo
	Timestamp time.Time
}

// NewMessage creates a message bound to a channel. A nil payload is
// normalized to NullValue so handlers never observe a Go nil.
func NewMessage(channelType ChannelType, channel string, payload Value, sender *SenderInfo) Message {
	if payload == nil {
		payload = NullValue{}
	}
	return Message{
		ID:        NewID(),
		Type:      channelType,
		Channel:   channel,
		Payload:   payload,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for messages and correlation.
func NewID() string { return uuid.NewString() }
