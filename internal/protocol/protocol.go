// Package protocol defines the frames exchanged over the chat channel.
//
// Every frame is a JSON envelope {"type": ..., "data": {...}}.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// Kind names a frame type.
type Kind string

// Inbound kinds.
const (
	KindMessageCreated Kind = "message_created"
	KindMessageRead    Kind = "message_read"
	KindTyping         Kind = "typing"
	KindPresence       Kind = "presence"
)

// Outbound kinds.
const (
	KindSendMessage Kind = "send_message"
	KindTypingStart Kind = "typing_start"
	KindMarkRead    Kind = "mark_read"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid envelopes or
	// whose payload is missing required fields.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownFrame is returned for well-formed frames of an unknown type.
	ErrUnknownFrame = errors.New("unknown frame type")
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageRead is the payload of a message_read frame. CounterpartID is only
// set when the reader is the current user on another device.
type MessageRead struct {
	ReaderID      string    `json:"reader_id"`
	CounterpartID string    `json:"counterpart_id,omitempty"`
	ContextID     string    `json:"context_id,omitempty"`
	UpToMessageID string    `json:"up_to_message_id"`
	ReadAt        time.Time `json:"read_at,omitempty"`
}

// Typing is the payload of a typing frame. A missing Active means started.
type Typing struct {
	UserID    string `json:"user_id"`
	ContextID string `json:"context_id,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

// IsActive reports whether the user started typing.
func (t Typing) IsActive() bool {
	return t.Active == nil || *t.Active
}

// SendMessage is the payload of a send_message frame.
type SendMessage struct {
	ClientRef   string            `json:"client_ref"`
	RecipientID string            `json:"recipient_id"`
	ContextID   string            `json:"context_id,omitempty"`
	Body        string            `json:"body"`
	Attachment  *model.Attachment `json:"attachment,omitempty"`
}

// TypingStart is the payload of a typing_start frame.
type TypingStart struct {
	RecipientID string `json:"recipient_id"`
	ContextID   string `json:"context_id,omitempty"`
}

// MarkRead is the payload of a mark_read frame.
type MarkRead struct {
	CounterpartID string `json:"counterpart_id"`
	ContextID     string `json:"context_id,omitempty"`
	UpToMessageID string `json:"up_to_message_id,omitempty"`
}

// Event is a decoded inbound frame. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Kind     Kind
	Message  *model.Message
	Read     *MessageRead
	Typing   *Typing
	Presence *model.Presence
}

// Decode parses an inbound frame.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	ev := Event{Kind: env.Type}
	switch env.Type {
	case KindMessageCreated:
		var msg model.Message
		if err := decodeData(env, &msg); err != nil {
			return Event{}, err
		}
		if msg.ID == "" || msg.SenderID == "" || msg.RecipientID == "" || msg.CreatedAt.IsZero() {
			return Event{}, fmt.Errorf("%w: message_created needs id, sender, recipient and created_at", ErrMalformedFrame)
		}
		ev.Message = &msg

	case KindMessageRead:
		var read MessageRead
		if err := decodeData(env, &read); err != nil {
			return Event{}, err
		}
		if read.ReaderID == "" || read.UpToMessageID == "" {
			return Event{}, fmt.Errorf("%w: message_read needs reader_id and up_to_message_id", ErrMalformedFrame)
		}
		ev.Read = &read

	case KindTyping:
		var typing Typing
		if err := decodeData(env, &typing); err != nil {
			return Event{}, err
		}
		if typing.UserID == "" {
			return Event{}, fmt.Errorf("%w: typing needs user_id", ErrMalformedFrame)
		}
		ev.Typing = &typing

	case KindPresence:
		var presence model.Presence
		if err := decodeData(env, &presence); err != nil {
			return Event{}, err
		}
		if presence.UserID == "" {
			return Event{}, fmt.Errorf("%w: presence needs user_id", ErrMalformedFrame)
		}
		ev.Presence = &presence

	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
	return ev, nil
}

func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedFrame, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
	}
	return nil
}

// Encode builds an outbound frame.
func Encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	frame, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return frame, nil
}

// Ephemeral reports whether frames of this kind lose their meaning when
// delayed, so they are dropped instead of queued while offline.
func (k Kind) Ephemeral() bool {
	return k == KindTypingStart
}
