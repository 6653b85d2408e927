package model

import "time"

// Engagement metric names recognized in Tick.Metrics. Unknown names are
// carried through untouched but never aggregated.
const (
	MetricLikes       = "like_count"
	MetricRetweets    = "retweet_count"
	MetricReplies     = "reply_count"
	MetricQuotes      = "quote_count"
	MetricImpressions = "impression_count"
)

// Tick is one observed post. Immutable after creation; the tick store owns
// the canonical copy and everything else works on snapshots.
type Tick struct {
	ID        string         `json:"id"`
	Author    string         `json:"author"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metrics   map[string]int `json:"metrics"`
	Topic     string         `json:"topic"`
}

// Metric returns the named engagement count, zero when absent.
func (t Tick) Metric(name string) int {
	return t.Metrics[name]
}
