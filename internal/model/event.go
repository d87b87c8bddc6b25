package model

import (
	"time"
)

// ConnectionState is the lifecycle state of the channel.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// ConnectionStatus is a snapshot for the connection indicator.
type ConnectionStatus struct {
	State       ConnectionState `json:"state"`
	Attempt     int             `json:"attempt"`
	NextRetryIn time.Duration   `json:"next_retry_in,omitempty"`
	Queued      int             `json:"queued"`
	LastError   string          `json:"last_error,omitempty"`
	Since       time.Time       `json:"since"`
}
