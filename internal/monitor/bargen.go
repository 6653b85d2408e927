package monitor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// SearchProvider issues time-bounded searches and parses the results into
// ticks. The window is half-open [start, end).
type SearchProvider interface {
	Search(ctx context.Context, query, topicLabel string, start, end time.Time, max int) ([]model.Tick, error)
}

// SummaryProvider produces typed model payloads for bars and digests.
type SummaryProvider interface {
	SummarizeBar(ctx context.Context, topic string, ticks []model.Tick, start, end time.Time) (*model.BarSummary, error)
	SynthesizeDigest(ctx context.Context, topic string, bars []model.Bar, lookbackHours int) (*model.TopicDigest, error)
}

// EngagementWeights is the fixed linear combination scoring a tick for
// highlight selection.
type EngagementWeights struct {
	Like    int
	Retweet int
	Reply   int
	Quote   int
}

// DefaultEngagementWeights weighs replies highest as the strongest signal of
// genuine discussion.
var DefaultEngagementWeights = EngagementWeights{Like: 2, Retweet: 3, Reply: 4, Quote: 2}

// Score computes the engagement score of a tick.
func (w EngagementWeights) Score(t model.Tick) int {
	return w.Like*t.Metric(model.MetricLikes) +
		w.Retweet*t.Metric(model.MetricRetweets) +
		w.Reply*t.Metric(model.MetricReplies) +
		w.Quote*t.Metric(model.MetricQuotes)
}

// BarGenerator projects ticks into bars. Metrics projection is pure; summary
// attachment goes through the SummaryProvider and is best-effort.
type BarGenerator struct {
	ticks     *TickStore
	summaries SummaryProvider
	weights   EngagementWeights
}

// NewBarGenerator creates a generator reading from ticks and summarizing via
// summaries. A nil summaries disables summary attachment.
func NewBarGenerator(ticks *TickStore, summaries SummaryProvider, weights EngagementWeights) *BarGenerator {
	if weights == (EngagementWeights{}) {
		weights = DefaultEngagementWeights
	}
	return &BarGenerator{ticks: ticks, summaries: summaries, weights: weights}
}

// GenerateBar builds the bar for t over [start, start+resolution). With
// withSummary set and posts present, a summary is requested; on provider
// failure the bar is returned without one and the error is only logged.
func (g *BarGenerator) GenerateBar(ctx context.Context, t model.Topic, resolution string, start time.Time, withSummary bool) (model.Bar, error) {
	secs, _ := model.ResolutionSeconds(resolution)
	start = start.UTC()
	end := start.Add(time.Duration(secs) * time.Second)

	ticks, err := g.ticks.Get(t.Label, &start, &end)
	if err != nil {
		return model.Bar{}, err
	}

	bar := model.Bar{
		Topic:      t.ID,
		Resolution: resolution,
		Start:      start,
		End:        end,
		PostCount:  len(ticks),
	}
	for _, tick := range ticks {
		bar.TotalLikes += tick.Metric(model.MetricLikes)
		bar.TotalRetweets += tick.Metric(model.MetricRetweets)
		bar.TotalReplies += tick.Metric(model.MetricReplies)
		bar.TotalQuotes += tick.Metric(model.MetricQuotes)
	}
	for i := 0; i < len(ticks) && i < 5; i++ {
		bar.SamplePostIDs = append(bar.SamplePostIDs, ticks[i].ID)
	}

	if withSummary && len(ticks) > 0 && g.summaries != nil {
		summary, err := g.summaries.SummarizeBar(ctx, t.Label, ticks, start, end)
		if err != nil {
			slog.Warn("bar summary failed", "topic", t.ID, "start", start, "error", err)
		} else {
			summary.PostCount = len(ticks)
			summary.HighlightPosts = g.selectHighlights(ticks)
			bar.Summary = summary
		}
	}
	return bar, nil
}

// GenerateBars builds limit bars walking backward from end (or now), most
// recent first. Generation stops early if the context is cancelled.
func (g *BarGenerator) GenerateBars(ctx context.Context, t model.Topic, resolution string, limit int, withSummaries bool, end time.Time) ([]model.Bar, error) {
	secs, _ := model.ResolutionSeconds(resolution)
	barEnd := model.FloorToResolution(end, secs)

	bars := make([]model.Bar, 0, limit)
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return bars, err
		}
		start := barEnd.Add(-time.Duration(secs) * time.Second)
		bar, err := g.GenerateBar(ctx, t, resolution, start, withSummaries)
		if err != nil {
			return bars, err
		}
		bars = append(bars, bar)
		barEnd = start
	}
	return bars, nil
}

// selectHighlights picks up to 2 tick IDs by engagement score descending,
// then timestamp descending, then id ascending.
func (g *BarGenerator) selectHighlights(ticks []model.Tick) []string {
	scored := make([]model.Tick, len(ticks))
	copy(scored, ticks)
	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := g.weights.Score(scored[i]), g.weights.Score(scored[j])
		if si != sj {
			return si > sj
		}
		if !scored[i].Timestamp.Equal(scored[j].Timestamp) {
			return scored[i].Timestamp.After(scored[j].Timestamp)
		}
		return scored[i].ID < scored[j].ID
	})

	ids := make([]string, 0, 2)
	for i := 0; i < len(scored) && i < 2; i++ {
		ids = append(ids, scored[i].ID)
	}
	return ids
}
