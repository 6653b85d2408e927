package model

import (
	"fmt"
	"time"
)

// Engagement levels reported in bar summaries.
const (
	EngagementLow    = "low"
	EngagementMedium = "medium"
	EngagementHigh   = "high"
)

// Bar is the projection of ticks in the half-open window [Start, End) at a
// given resolution. Bars are values: regenerating from the same ticks yields
// an equal bar except for Summary, which is externally derived.
type Bar struct {
	Topic         string      `json:"topic"`
	Resolution    string      `json:"resolution"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	PostCount     int         `json:"post_count"`
	TotalLikes    int         `json:"total_likes"`
	TotalRetweets int         `json:"total_retweets"`
	TotalReplies  int         `json:"total_replies"`
	TotalQuotes   int         `json:"total_quotes"`
	SamplePostIDs []string    `json:"sample_post_ids"`
	Summary       *BarSummary `json:"summary,omitempty"`
}

// WithoutSummary returns a copy of the bar with the summary stripped.
func (b Bar) WithoutSummary() Bar {
	b.Summary = nil
	return b
}

// BarSummary is the model-derived narrative for a single bar.
type BarSummary struct {
	Summary         string   `json:"summary"`
	KeyThemes       []string `json:"key_themes"`
	Sentiment       float64  `json:"sentiment"`
	PostCount       int      `json:"post_count"`
	EngagementLevel string   `json:"engagement_level"`
	HighlightPosts  []string `json:"highlight_posts"`
}

// Validate rejects summaries that are not well-typed: sentiment outside
// [0, 1], an unknown engagement level, or more than two highlights.
func (s *BarSummary) Validate() error {
	if s.Sentiment < 0 || s.Sentiment > 1 {
		return fmt.Errorf("sentiment %v out of range [0, 1]", s.Sentiment)
	}
	switch s.EngagementLevel {
	case EngagementLow, EngagementMedium, EngagementHigh:
	default:
		return fmt.Errorf("unknown engagement level %q", s.EngagementLevel)
	}
	if len(s.HighlightPosts) > 2 {
		return fmt.Errorf("%d highlight posts, max 2", len(s.HighlightPosts))
	}
	return nil
}

// TopicDigest is a narrative synthesis over a run of recent bars. Pure
// derived data; never cached.
type TopicDigest struct {
	Topic            string    `json:"topic"`
	GeneratedAt      time.Time `json:"generated_at"`
	TimeRange        string    `json:"time_range"`
	OverallSummary   string    `json:"overall_summary"`
	KeyDevelopments  []string  `json:"key_developments"`
	TrendingElements []string  `json:"trending_elements"`
	SentimentTrend   string    `json:"sentiment_trend"`
	Recommendations  []string  `json:"recommendations"`
}
