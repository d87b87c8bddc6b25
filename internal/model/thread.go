// Package model defines data structures for the messaging client.
package model

import (
	"time"
)

// ThreadKey identifies a conversation with one counterpart, optionally scoped
// to a booking or other context. An empty ContextID is a general conversation.
type ThreadKey struct {
	CounterpartID string `json:"counterpart_id"`
	ContextID     string `json:"context_id,omitempty"`
}

// IsZero reports whether the key is unset.
func (k ThreadKey) IsZero() bool {
	return k.CounterpartID == ""
}

// String renders the key as "counterpart" or "counterpart/context".
func (k ThreadKey) String() string {
	if k.ContextID == "" {
		return k.CounterpartID
	}
	return k.CounterpartID + "/" + k.ContextID
}

// Thread is a conversation as shown in the thread list.
type Thread struct {
	Key                ThreadKey `json:"key"`
	DisplayName        string    `json:"display_name"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
	CounterpartRole    string    `json:"counterpart_role,omitempty"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at"`
	LastSenderID       string    `json:"last_sender_id,omitempty"`
	MessageCount       int       `json:"message_count"`
	UnreadCount        int       `json:"unread_count"`
}

// User is the basic profile of a participant.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Presence is the last known online state of a user.
type Presence struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}
