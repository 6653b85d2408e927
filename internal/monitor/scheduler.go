package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// closeMargin is how long past a bar boundary the scheduler waits before
// building the just-closed bar, so the window is closed from the search
// provider's perspective too.
const closeMargin = 2 * time.Second

// BarScheduler runs one task per supported resolution. Each task wakes just
// after every bar-close boundary, builds the closed bar for every active
// topic with a summary attached, and caches it.
type BarScheduler struct {
	registry *Registry
	gen      *BarGenerator
	bars     *BarStore
	backfill int

	// Overridable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBarScheduler creates a scheduler backfilling up to backfill historical
// bars per (topic, resolution) on start.
func NewBarScheduler(registry *Registry, gen *BarGenerator, bars *BarStore, backfill int) *BarScheduler {
	return &BarScheduler{
		registry: registry,
		gen:      gen,
		bars:     bars,
		backfill: backfill,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run backfills every active topic, then drives one close task per
// resolution until ctx is cancelled.
func (s *BarScheduler) Run(ctx context.Context) {
	for _, t := range s.registry.Active() {
		s.BackfillTopic(ctx, t)
	}

	var wg sync.WaitGroup
	for _, token := range model.ResolutionTokens() {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			s.runResolution(ctx, token)
		}(token)
	}
	wg.Wait()
	slog.Info("bar scheduler stopped")
}

// runResolution closes bars at every boundary of one resolution. The next
// boundary is recomputed from the clock each cycle, so a slow pass skips
// missed boundaries instead of queueing behind them.
func (s *BarScheduler) runResolution(ctx context.Context, resolution string) {
	secs, _ := model.ResolutionSeconds(resolution)
	width := time.Duration(secs) * time.Second
	slog.Debug("bar close task started", "resolution", resolution)

	for {
		next := model.CeilToResolution(s.now().UTC(), secs)
		if err := s.sleep(ctx, next.Add(closeMargin).Sub(s.now())); err != nil {
			return
		}
		s.closeBoundary(ctx, resolution, next.Add(-width))
	}
}

// closeBoundary builds the bar starting at start for every active topic.
// Keys already holding a summarized bar are skipped, which makes repeated
// passes over the same window idempotent.
func (s *BarScheduler) closeBoundary(ctx context.Context, resolution string, start time.Time) {
	for _, t := range s.registry.Active() {
		if ctx.Err() != nil {
			return
		}
		if s.bars.HasSummarized(t.ID, resolution, start) {
			continue
		}
		bar, err := s.gen.GenerateBar(ctx, t, resolution, start, true)
		if err != nil {
			slog.Warn("bar generation failed", "topic", t.ID, "resolution", resolution, "error", err)
			continue
		}
		s.bars.Put(bar)
	}
}

// BackfillTopic seeds the cache with up to the configured number of
// historical metrics-only bars per resolution, oldest first, so reads are
// never empty. Summaries materialize later as close tasks fire.
func (s *BarScheduler) BackfillTopic(ctx context.Context, t model.Topic) {
	if s.backfill == 0 {
		return
	}
	for _, token := range model.ResolutionTokens() {
		bars, err := s.gen.GenerateBars(ctx, t, token, s.backfill, false, s.now().UTC())
		if err != nil {
			slog.Warn("backfill failed", "topic", t.ID, "resolution", token, "error", err)
			continue
		}
		for i := len(bars) - 1; i >= 0; i-- {
			s.bars.Put(bars[i])
		}
	}
	slog.Info("backfill complete", "topic", t.ID, "bars_per_resolution", s.backfill)
}
