package monitor

import (
	"testing"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

func barAt(start time.Time, summarized bool) model.Bar {
	b := model.Bar{
		Topic:      "tsla",
		Resolution: "1m",
		Start:      start,
		End:        start.Add(time.Minute),
		PostCount:  1,
	}
	if summarized {
		b.Summary = &model.BarSummary{Summary: "s", Sentiment: 0.5, EngagementLevel: model.EngagementLow, PostCount: 1}
	}
	return b
}

func TestPutGetMostRecentFirst(t *testing.T) {
	s := NewBarStore(500)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	// Inserted out of order; Get returns start descending.
	s.Put(barAt(noon.Add(time.Minute), false))
	s.Put(barAt(noon, false))
	s.Put(barAt(noon.Add(2*time.Minute), false))

	bars := s.Get("tsla", "1m", 10)
	if len(bars) != 3 {
		t.Fatalf("len = %d, want 3", len(bars))
	}
	if !bars[0].Start.Equal(noon.Add(2*time.Minute)) || !bars[2].Start.Equal(noon) {
		t.Errorf("order = %v, %v, %v", bars[0].Start, bars[1].Start, bars[2].Start)
	}

	limited := s.Get("tsla", "1m", 2)
	if len(limited) != 2 || !limited[0].Start.Equal(noon.Add(2*time.Minute)) {
		t.Errorf("limited = %v", limited)
	}
}

func TestPutSummaryPrecedence(t *testing.T) {
	s := NewBarStore(500)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	// A summarized bar supersedes a metrics-only one at the same key.
	s.Put(barAt(noon, false))
	s.Put(barAt(noon, true))
	if got, _ := s.Latest("tsla", "1m"); got.Summary == nil {
		t.Error("summarized bar did not supersede metrics-only bar")
	}

	// The reverse never happens.
	s.Put(barAt(noon, false))
	if got, _ := s.Latest("tsla", "1m"); got.Summary == nil {
		t.Error("metrics-only bar clobbered a summarized bar")
	}
}

func TestEvictsOldestPastCap(t *testing.T) {
	s := NewBarStore(3)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Put(barAt(noon.Add(time.Duration(i)*time.Minute), false))
	}

	bars := s.Get("tsla", "1m", 10)
	if len(bars) != 3 {
		t.Fatalf("len = %d, want capped at 3", len(bars))
	}
	if !bars[len(bars)-1].Start.Equal(noon.Add(2 * time.Minute)) {
		t.Errorf("oldest kept = %v, want 12:02", bars[len(bars)-1].Start)
	}
}

func TestLatestNeverMovesBackward(t *testing.T) {
	s := NewBarStore(500)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	s.Put(barAt(noon.Add(time.Minute), false))
	s.Put(barAt(noon, false)) // older put after newer

	got, ok := s.Latest("tsla", "1m")
	if !ok {
		t.Fatal("Latest ok = false")
	}
	if got.Start.Before(noon.Add(time.Minute)) {
		t.Errorf("latest start = %v, want >= 12:01", got.Start)
	}
}

func TestHasSummarized(t *testing.T) {
	s := NewBarStore(500)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	s.Put(barAt(noon, false))
	if s.HasSummarized("tsla", "1m", noon) {
		t.Error("HasSummarized = true for metrics-only bar")
	}
	s.Put(barAt(noon, true))
	if !s.HasSummarized("tsla", "1m", noon) {
		t.Error("HasSummarized = false after summarized put")
	}
	if s.HasSummarized("tsla", "1m", noon.Add(time.Minute)) {
		t.Error("HasSummarized = true for absent key")
	}
}

func TestResolutionsAreIndependent(t *testing.T) {
	s := NewBarStore(500)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	oneMin := barAt(noon, false)
	fiveMin := barAt(noon, false)
	fiveMin.Resolution = "5m"
	fiveMin.End = noon.Add(5 * time.Minute)
	s.Put(oneMin)
	s.Put(fiveMin)

	if got := s.Get("tsla", "1m", 10); len(got) != 1 || got[0].Resolution != "1m" {
		t.Errorf("1m series = %v", got)
	}
	if got := s.Get("tsla", "5m", 10); len(got) != 1 || got[0].Resolution != "5m" {
		t.Errorf("5m series = %v", got)
	}
}

func TestClearTopic(t *testing.T) {
	s := NewBarStore(500)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	s.Put(barAt(noon, true))

	s.Clear("tsla")
	if got := s.Get("tsla", "1m", 10); len(got) != 0 {
		t.Errorf("bars after clear = %v", got)
	}
	if _, ok := s.Latest("tsla", "1m"); ok {
		t.Error("Latest ok = true after clear")
	}
}
