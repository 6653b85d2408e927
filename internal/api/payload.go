package api

import (
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// barPayload is the wire shape of a bar. Summary fields are flattened onto
// the bar so dashboard clients read one level deep; they are null or empty
// when no summary is attached.
type barPayload struct {
	Topic           string    `json:"topic"`
	Resolution      string    `json:"resolution"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	PostCount       int       `json:"post_count"`
	TotalLikes      int       `json:"total_likes"`
	TotalRetweets   int       `json:"total_retweets"`
	TotalReplies    int       `json:"total_replies"`
	TotalQuotes     int       `json:"total_quotes"`
	SamplePostIDs   []string  `json:"sample_post_ids"`
	Summary         *string   `json:"summary"`
	Sentiment       *float64  `json:"sentiment"`
	KeyThemes       []string  `json:"key_themes"`
	EngagementLevel string    `json:"engagement_level,omitempty"`
	HighlightPosts  []string  `json:"highlight_posts"`
}

func toBarPayload(b model.Bar) barPayload {
	p := barPayload{
		Topic:          b.Topic,
		Resolution:     b.Resolution,
		Start:          b.Start,
		End:            b.End,
		PostCount:      b.PostCount,
		TotalLikes:     b.TotalLikes,
		TotalRetweets:  b.TotalRetweets,
		TotalReplies:   b.TotalReplies,
		TotalQuotes:    b.TotalQuotes,
		SamplePostIDs:  b.SamplePostIDs,
		KeyThemes:      []string{},
		HighlightPosts: []string{},
	}
	if p.SamplePostIDs == nil {
		p.SamplePostIDs = []string{}
	}
	if b.Summary != nil {
		p.Summary = &b.Summary.Summary
		p.Sentiment = &b.Summary.Sentiment
		p.EngagementLevel = b.Summary.EngagementLevel
		if b.Summary.KeyThemes != nil {
			p.KeyThemes = b.Summary.KeyThemes
		}
		if b.Summary.HighlightPosts != nil {
			p.HighlightPosts = b.Summary.HighlightPosts
		}
	}
	return p
}

func toBarPayloads(bars []model.Bar) []barPayload {
	out := make([]barPayload, len(bars))
	for i, b := range bars {
		out[i] = toBarPayload(b)
	}
	return out
}
