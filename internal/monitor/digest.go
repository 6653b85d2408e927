package monitor

import (
	"context"
	"math"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// DigestService synthesizes a narrative over a run of recent bars.
type DigestService struct {
	summaries SummaryProvider

	// Overridable in tests.
	now func() time.Time
}

// NewDigestService creates a DigestService calling out through summaries.
func NewDigestService(summaries SummaryProvider) *DigestService {
	return &DigestService{summaries: summaries, now: time.Now}
}

// Digest synthesizes a digest for t over bars, most recent first. The
// lookback reported to the provider is derived from the bar span. With no
// bars a canned empty digest is returned without a provider call; provider
// errors surface as-is.
func (d *DigestService) Digest(ctx context.Context, t model.Topic, bars []model.Bar) (*model.TopicDigest, error) {
	if len(bars) == 0 {
		return &model.TopicDigest{
			Topic:            t.Label,
			GeneratedAt:      d.now().UTC(),
			TimeRange:        "No data",
			OverallSummary:   "No recent activity for this topic",
			KeyDevelopments:  []string{},
			TrendingElements: []string{},
			SentimentTrend:   "neutral",
			Recommendations:  []string{},
		}, nil
	}

	span := bars[0].End.Sub(bars[len(bars)-1].Start)
	hours := int(math.Ceil(span.Hours()))
	if hours < 1 {
		hours = 1
	}
	return d.summaries.SynthesizeDigest(ctx, t.Label, bars, hours)
}
