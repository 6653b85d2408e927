package model

import (
	"strings"
	"time"
	"unicode"
)

// TopicStatus is the lifecycle state of a watched topic.
type TopicStatus string

const (
	TopicActive TopicStatus = "active"
	TopicPaused TopicStatus = "paused"
	TopicError  TopicStatus = "error"
)

// Topic is one subscription. The label doubles as the tick store key so the
// operator-visible id can change independently of stored data.
type Topic struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Query      string      `json:"query"`
	Resolution string      `json:"resolution"`
	Status     TopicStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	LastPoll   *time.Time  `json:"last_poll,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	PollCount  int         `json:"poll_count"`
	TickCount  int         `json:"tick_count"`
}

// DeriveTopicID builds the registry key from a display label: lowercased,
// with '$' and all whitespace removed. "$TSLA" becomes "tsla".
func DeriveTopicID(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if r == '$' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
