package grok

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evford/tickerwatch/internal/limiter"
	"github.com/evford/tickerwatch/internal/model"
)

// testClient points a Client at a fake chat-completions endpoint that
// replies with content as the assistant message body.
func testClient(t *testing.T, content string) (*Client, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		resp := map[string]any{
			"id":     "cmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	rl := limiter.New()
	for _, cat := range []string{CategoryFast, CategoryReasoning} {
		rl.Configure(cat, limiter.Config{
			RequestsPerWindow: 1000,
			Window:            time.Minute,
			Strategy:          limiter.SlidingWindow,
		})
	}
	return NewClient("test-key", rl, Options{BaseURL: srv.URL}), calls
}

func sampleTicks(n int) []model.Tick {
	ticks := make([]model.Tick, n)
	for i := range ticks {
		ticks[i] = model.Tick{
			ID:        "t1",
			Author:    "alice",
			Text:      "shipping update looks solid",
			Timestamp: time.Now().UTC(),
		}
	}
	return ticks
}

func TestSummarizeBarParses(t *testing.T) {
	body, _ := json.Marshal(model.BarSummary{
		Summary:         "Delivery numbers beat expectations",
		KeyThemes:       []string{"deliveries"},
		Sentiment:       0.7,
		PostCount:       3,
		EngagementLevel: model.EngagementMedium,
		HighlightPosts:  []string{"t1"},
	})
	c, calls := testClient(t, string(body))

	end := time.Now().UTC().Truncate(time.Minute)
	summary, err := c.SummarizeBar(context.Background(), "$TSLA", sampleTicks(3), end.Add(-time.Minute), end)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sentiment != 0.7 || summary.EngagementLevel != model.EngagementMedium {
		t.Errorf("summary = %+v", summary)
	}
	if *calls != 1 {
		t.Errorf("upstream calls = %d, want 1", *calls)
	}
}

func TestSummarizeBarEmptyTicksSkipsModel(t *testing.T) {
	c, calls := testClient(t, `{}`)

	end := time.Now().UTC()
	summary, err := c.SummarizeBar(context.Background(), "$TSLA", nil, end.Add(-time.Minute), end)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sentiment != 0.5 || summary.PostCount != 0 {
		t.Errorf("summary = %+v, want neutral empty", summary)
	}
	if *calls != 0 {
		t.Errorf("upstream calls = %d, want 0 for empty window", *calls)
	}
}

func TestSummarizeBarRejectsOutOfRangeSentiment(t *testing.T) {
	c, _ := testClient(t, `{"summary": "x", "sentiment": 1.4, "engagement_level": "low"}`)

	end := time.Now().UTC()
	_, err := c.SummarizeBar(context.Background(), "$TSLA", sampleTicks(1), end.Add(-time.Minute), end)
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("err = %v, want ResponseError", err)
	}
}

func TestSummarizeBarRejectsMalformedContent(t *testing.T) {
	c, _ := testClient(t, `the market seems bullish today`)

	end := time.Now().UTC()
	_, err := c.SummarizeBar(context.Background(), "$TSLA", sampleTicks(1), end.Add(-time.Minute), end)
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("err = %v, want ResponseError", err)
	}
}

func TestSynthesizeDigestParses(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"overall_summary":   "Mostly quiet with one delivery spike",
		"key_developments":  []string{"delivery beat"},
		"trending_elements": []string{"#deliveries"},
		"sentiment_trend":   "improving",
		"recommendations":   []string{"watch earnings call"},
	})
	c, _ := testClient(t, string(body))

	now := time.Now().UTC().Truncate(time.Minute)
	bars := []model.Bar{
		{Topic: "tsla", Resolution: "1m", Start: now.Add(-time.Minute), End: now, PostCount: 4,
			Summary: &model.BarSummary{Summary: "delivery spike", Sentiment: 0.7, EngagementLevel: model.EngagementHigh}},
		{Topic: "tsla", Resolution: "1m", Start: now.Add(-2 * time.Minute), End: now.Add(-time.Minute), PostCount: 0},
	}
	digest, err := c.SynthesizeDigest(context.Background(), "$TSLA", bars, 1)
	if err != nil {
		t.Fatal(err)
	}
	if digest.Topic != "$TSLA" {
		t.Errorf("topic = %q", digest.Topic)
	}
	if digest.OverallSummary == "" || digest.SentimentTrend != "improving" {
		t.Errorf("digest = %+v", digest)
	}
	if digest.TimeRange != "Last 1 hour(s)" {
		t.Errorf("time range = %q", digest.TimeRange)
	}
	if digest.GeneratedAt.IsZero() {
		t.Error("generated_at missing")
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient("", limiter.New(), Options{})
	if c.Live() {
		t.Error("Live() = true without key")
	}

	end := time.Now().UTC()
	_, err := c.SummarizeBar(context.Background(), "x", sampleTicks(1), end.Add(-time.Minute), end)
	var ncErr *NotConfiguredError
	if !errors.As(err, &ncErr) {
		t.Fatalf("err = %v, want NotConfiguredError", err)
	}
}
