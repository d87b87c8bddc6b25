package reconcile

import (
	"strings"
	"time"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// DefaultMatchWindow bounds the timestamp distance between an optimistic
// message and its confirmation when no client reference is echoed.
const DefaultMatchWindow = 2 * time.Minute

// MatchOptimistic returns the index in pending of the optimistic message that
// confirmed stands for, or -1. pending must be ordered oldest first.
//
// When both sides carry a client reference they must be equal. Otherwise the
// sender, the trimmed body and a time window decide, and the oldest candidate
// wins. Two identical sends within the window can therefore be matched in
// the wrong order; their content is identical so the view is unaffected.
func MatchOptimistic(pending []model.Message, confirmed model.Message, window time.Duration) int {
	if confirmed.ClientRef != "" {
		for i, p := range pending {
			if p.ClientRef == confirmed.ClientRef || p.ID == confirmed.ClientRef {
				return i
			}
		}
	}

	body := strings.TrimSpace(confirmed.Body)
	for i, p := range pending {
		if p.ClientRef != "" && confirmed.ClientRef != "" {
			continue
		}
		if p.SenderID != confirmed.SenderID {
			continue
		}
		if strings.TrimSpace(p.Body) != body {
			continue
		}
		if absDuration(confirmed.CreatedAt.Sub(p.CreatedAt)) > window {
			continue
		}
		return i
	}
	return -1
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
