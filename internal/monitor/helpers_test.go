package monitor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

func testTickStore(t *testing.T, maxPerTopic int) *TickStore {
	t.Helper()
	s, err := OpenTickStore(filepath.Join(t.TempDir(), "ticks.db"), maxPerTopic)
	if err != nil {
		t.Fatalf("open tick store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func tick(id string, ts time.Time, likes, retweets, replies, quotes int) model.Tick {
	return model.Tick{
		ID:        id,
		Author:    "user_" + id,
		Text:      "post " + id,
		Timestamp: ts,
		Metrics: map[string]int{
			model.MetricLikes:    likes,
			model.MetricRetweets: retweets,
			model.MetricReplies:  replies,
			model.MetricQuotes:   quotes,
		},
	}
}

// fakeSearch returns a fixed batch of ticks, or a fixed error, and records
// the windows it was asked for.
type fakeSearch struct {
	mu    sync.Mutex
	ticks []model.Tick
	err   error

	calls     int
	lastStart time.Time
	lastEnd   time.Time
}

func (f *fakeSearch) Search(ctx context.Context, query, topicLabel string, start, end time.Time, max int) ([]model.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastStart, f.lastEnd = start, end
	if f.err != nil {
		return nil, f.err
	}
	return f.ticks, nil
}

// fakeSummaries returns canned payloads and records what it was called with.
type fakeSummaries struct {
	mu      sync.Mutex
	summary *model.BarSummary
	digest  *model.TopicDigest
	err     error

	summarizeCalls int
	digestCalls    int
	lastTicks      int
	lastLookback   int
}

func (f *fakeSummaries) SummarizeBar(ctx context.Context, topic string, ticks []model.Tick, start, end time.Time) (*model.BarSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	f.lastTicks = len(ticks)
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		cp := *f.summary
		return &cp, nil
	}
	return &model.BarSummary{Summary: "ok", Sentiment: 0.5, EngagementLevel: model.EngagementLow}, nil
}

func (f *fakeSummaries) SynthesizeDigest(ctx context.Context, topic string, bars []model.Bar, lookbackHours int) (*model.TopicDigest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digestCalls++
	f.lastLookback = lookbackHours
	if f.err != nil {
		return nil, f.err
	}
	if f.digest != nil {
		cp := *f.digest
		return &cp, nil
	}
	return &model.TopicDigest{Topic: topic, GeneratedAt: time.Now().UTC(), OverallSummary: "ok"}, nil
}
