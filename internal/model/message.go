package model

import (
	"strings"
	"time"
)

// TemporaryIDPrefix marks locally assigned ids of messages still in flight.
const TemporaryIDPrefix = "tmp-"

// DeliveryState is the delivery progress of a message. States only advance.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

func (s DeliveryState) rank() int {
	switch s {
	case StateSent:
		return 1
	case StateDelivered:
		return 2
	case StateRead:
		return 3
	default:
		return 0
	}
}

// Advance returns the later of s and next.
func (s DeliveryState) Advance(next DeliveryState) DeliveryState {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Before reports whether s is an earlier state than other.
func (s DeliveryState) Before(other DeliveryState) bool {
	return s.rank() < other.rank()
}

// Attachment references an uploaded file.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a single chat message.
type Message struct {
	// Identity
	ID        string `json:"id"`
	ClientRef string `json:"client_ref,omitempty"`

	// Participants
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	ContextID   string `json:"context_id,omitempty"`

	// Content
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`

	CreatedAt time.Time     `json:"created_at"`
	State     DeliveryState `json:"state,omitempty"`
}

// IsTemporary reports whether the message has not been confirmed by the server.
func (m *Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TemporaryIDPrefix)
}

// Thread returns the conversation the message belongs to, seen from self.
func (m *Message) Thread(self string) ThreadKey {
	counterpart := m.SenderID
	if m.SenderID == self {
		counterpart = m.RecipientID
	}
	return ThreadKey{CounterpartID: counterpart, ContextID: m.ContextID}
}

// Preview returns the body trimmed to at most n runes for list display.
func (m *Message) Preview(n int) string {
	body := strings.TrimSpace(m.Body)
	if body == "" && m.Attachment != nil {
		return m.Attachment.Name
	}
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n]) + "…"
}
