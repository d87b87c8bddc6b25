package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxIDLength = 128

// ValidateParticipantID validates a counterpart or context id from a URL.
func ValidateParticipantID(id string, required bool) error {
	if id == "" {
		if required {
			return errors.New("id cannot be empty")
		}
		return nil
	}
	if len(id) > maxIDLength {
		return errors.New("id exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("id must be valid UTF-8")
	}
	if strings.ContainsAny(id, "/ \t\n") {
		return errors.New("id contains invalid characters")
	}
	return nil
}

// ValidateNoticeID validates a notice ID.
func ValidateNoticeID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid notice ID format")
	}
	return nil
}
