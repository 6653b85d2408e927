package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/evford/tickerwatch/internal/model"
	"github.com/evford/tickerwatch/internal/xapi"
)

// TickPoller periodically fetches the next safe window of posts for every
// pollable topic and feeds the tick store.
type TickPoller struct {
	registry   *Registry
	ticks      *TickStore
	search     SearchProvider
	interval   time.Duration
	maxResults int

	mu      sync.Mutex
	backoff map[string]time.Time // topic id -> retry-after instant

	// Overridable in tests.
	now   func() time.Time
	yield func()
}

// NewTickPoller creates a poller fetching up to maxResults posts per topic
// every interval.
func NewTickPoller(registry *Registry, ticks *TickStore, search SearchProvider, interval time.Duration, maxResults int) *TickPoller {
	return &TickPoller{
		registry:   registry,
		ticks:      ticks,
		search:     search,
		interval:   interval,
		maxResults: maxResults,
		backoff:    make(map[string]time.Time),
		now:        time.Now,
		yield:      func() { time.Sleep(50 * time.Millisecond) },
	}
}

// Run polls every interval until ctx is cancelled. An in-flight topic's add
// completes before returning so accepted ticks are not lost.
func (p *TickPoller) Run(ctx context.Context) {
	slog.Info("tick poller started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("tick poller stopped")
			return
		case <-ticker.C:
			p.PollAll(ctx)
		}
	}
}

// PollAll polls every pollable topic once, yielding briefly between topics
// so one topic cannot hog the shared rate-limit category.
func (p *TickPoller) PollAll(ctx context.Context) {
	topics := p.registry.Pollable()
	for i, t := range topics {
		if ctx.Err() != nil {
			return
		}
		if p.inBackoff(t.ID) {
			continue
		}
		if _, _, err := p.PollTopic(ctx, t.ID); err != nil {
			slog.Warn("poll failed", "topic", t.ID, "error", err)
		}
		if i < len(topics)-1 {
			p.yield()
		}
	}
}

// PollTopic runs one poll for the topic right now, regardless of status.
// Returns newly accepted and total tick counts.
func (p *TickPoller) PollTopic(ctx context.Context, id string) (newTicks, totalTicks int, err error) {
	t, err := p.registry.Get(id)
	if err != nil {
		return 0, 0, err
	}

	// The window ends inside the upstream's freshness buffer and spans one
	// poll interval, so consecutive polls tile the timeline.
	end := p.now().UTC().Add(-15 * time.Second).Truncate(time.Second)
	start := end.Add(-p.interval)

	found, err := p.search.Search(ctx, t.Query, t.Label, start, end, p.maxResults)
	if err != nil {
		p.recordFailure(t, err)
		return 0, 0, err
	}

	accepted, err := p.ticks.Add(t.Label, found)
	if err != nil {
		p.registry.RecordError(t.ID, err.Error())
		return 0, 0, err
	}
	total, err := p.ticks.Count(t.Label)
	if err != nil {
		return accepted, 0, err
	}

	p.registry.RecordPoll(t.ID, total)
	p.clearBackoff(t.ID)
	if accepted > 0 {
		slog.Info("poll complete", "topic", t.ID, "new_ticks", accepted, "total_ticks", total)
	} else {
		slog.Debug("poll complete", "topic", t.ID, "new_ticks", 0)
	}
	return accepted, total, nil
}

// recordFailure marks the topic errored. A rate-limited topic additionally
// backs off until the reset the upstream reported.
func (p *TickPoller) recordFailure(t model.Topic, err error) {
	p.registry.RecordError(t.ID, err.Error())

	var rlErr *xapi.RateLimitError
	if errors.As(err, &rlErr) && !rlErr.Reset.IsZero() {
		p.mu.Lock()
		p.backoff[t.ID] = rlErr.Reset
		p.mu.Unlock()
		slog.Warn("topic backing off until rate limit reset", "topic", t.ID, "reset", rlErr.Reset)
	}
}

func (p *TickPoller) inBackoff(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	until, ok := p.backoff[id]
	return ok && p.now().Before(until)
}

func (p *TickPoller) clearBackoff(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.backoff, id)
}
