// Package monitor holds the core pipeline: topic registry, durable tick
// store, bar generation and caching, the poller and per-resolution bar
// schedulers, and the query interface the HTTP layer serves from.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// PollResult is the outcome of a manually triggered poll.
type PollResult struct {
	Success    bool `json:"success"`
	NewTicks   int  `json:"new_ticks"`
	TotalTicks int  `json:"total_ticks"`
}

// Health is the service health snapshot.
type Health struct {
	Status       string `json:"status"`
	TopicsCount  int    `json:"topics_count"`
	ActiveTopics int    `json:"active_topics"`
}

// Service wires the pipeline together and exposes the operations the HTTP
// layer calls. Safe for concurrent use.
type Service struct {
	cfg       *Config
	registry  *Registry
	ticks     *TickStore
	bars      *BarStore
	gen       *BarGenerator
	poller    *TickPoller
	scheduler *BarScheduler
	digests   *DigestService

	// Overridable in tests.
	now func() time.Time
}

// New opens the tick store and assembles the pipeline. The caller owns the
// providers; nil summaries degrades every bar to metrics-only.
func New(cfg *Config, search SearchProvider, summaries SummaryProvider) (*Service, error) {
	ticks, err := OpenTickStore(cfg.Storage.Path, cfg.Storage.MaxTicksPerTopic)
	if err != nil {
		return nil, fmt.Errorf("open tick store: %w", err)
	}

	registry := NewRegistry()
	bars := NewBarStore(cfg.Bars.MaxPerResolution)
	weights := EngagementWeights{
		Like:    cfg.Bars.Weights.Like,
		Retweet: cfg.Bars.Weights.Retweet,
		Reply:   cfg.Bars.Weights.Reply,
		Quote:   cfg.Bars.Weights.Quote,
	}
	gen := NewBarGenerator(ticks, summaries, weights)

	return &Service{
		cfg:       cfg,
		registry:  registry,
		ticks:     ticks,
		bars:      bars,
		gen:       gen,
		poller:    NewTickPoller(registry, ticks, search, cfg.Poll.Interval.Duration, cfg.Poll.MaxResults),
		scheduler: NewBarScheduler(registry, gen, bars, cfg.Bars.BackfillCount),
		digests:   NewDigestService(summaries),
		now:       time.Now,
	}, nil
}

// Run starts the background tasks when auto-start is enabled and blocks
// until ctx is cancelled. The query interface works either way.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Poll.AutoStart {
		slog.Info("auto start disabled, background tasks idle")
		<-ctx.Done()
		return s.Close()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.scheduler.Run(ctx)
	}()
	wg.Wait()
	return s.Close()
}

// Close releases the durable store.
func (s *Service) Close() error {
	return s.ticks.Close()
}

// CreateTopic registers a topic and seeds its bar cache.
func (s *Service) CreateTopic(ctx context.Context, label, query, resolution string) (model.Topic, error) {
	t, err := s.registry.Create(label, query, resolution)
	if err != nil {
		return model.Topic{}, err
	}
	slog.Info("topic created", "id", t.ID, "label", t.Label, "resolution", t.Resolution)
	s.scheduler.BackfillTopic(ctx, t)
	return t, nil
}

// GetTopic returns the topic with the given id.
func (s *Service) GetTopic(id string) (model.Topic, error) {
	return s.registry.Get(id)
}

// ListTopics returns all topics in creation order.
func (s *Service) ListTopics() []model.Topic {
	return s.registry.List()
}

// DeleteTopic removes the topic and clears its ticks and cached bars.
func (s *Service) DeleteTopic(id string) error {
	t, err := s.registry.Remove(id)
	if err != nil {
		return err
	}
	if err := s.ticks.Clear(t.Label); err != nil {
		return fmt.Errorf("clear ticks: %w", err)
	}
	s.bars.Clear(t.ID)
	slog.Info("topic deleted", "id", id)
	return nil
}

// PauseTopic suspends polling for the topic.
func (s *Service) PauseTopic(id string) error {
	return s.registry.SetStatus(id, model.TopicPaused)
}

// ResumeTopic reactivates a paused or errored topic.
func (s *Service) ResumeTopic(id string) error {
	return s.registry.SetStatus(id, model.TopicActive)
}

// SetResolution changes the topic's default read resolution.
func (s *Service) SetResolution(id, resolution string) (model.Topic, error) {
	if err := s.registry.SetResolution(id, resolution); err != nil {
		return model.Topic{}, err
	}
	return s.registry.Get(id)
}

// GetBars serves the read path. The cache is consulted first; when it has
// nothing useful, metrics-only bars are synthesized on the spot without
// being stored. Reads never wait on the summary provider.
func (s *Service) GetBars(ctx context.Context, id, resolution string, limit int, withSummaries bool) ([]model.Bar, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if resolution == "" {
		resolution = t.Resolution
	}
	if !model.ValidResolution(resolution) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	if limit <= 0 {
		limit = 50
	}

	cached := s.bars.Get(t.ID, resolution, limit)
	if len(cached) > 0 {
		return stripSummaries(cached, withSummaries), nil
	}

	bars, err := s.gen.GenerateBars(ctx, t, resolution, limit, false, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// LatestBar returns the most recent bar for the topic, or nil when neither
// cache nor ticks yield one.
func (s *Service) LatestBar(ctx context.Context, id, resolution string) (*model.Bar, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if resolution == "" {
		resolution = t.Resolution
	}
	if !model.ValidResolution(resolution) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	if bar, ok := s.bars.Latest(t.ID, resolution); ok {
		return &bar, nil
	}
	bars, err := s.gen.GenerateBars(ctx, t, resolution, 1, false, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[0], nil
}

// Poll triggers one poll for the topic right now.
func (s *Service) Poll(ctx context.Context, id string) (PollResult, error) {
	newTicks, total, err := s.poller.PollTopic(ctx, id)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{Success: true, NewTicks: newTicks, TotalTicks: total}, nil
}

// PollAll polls every pollable topic once.
func (s *Service) PollAll(ctx context.Context) {
	s.poller.PollAll(ctx)
}

// Digest synthesizes a digest over the topic's most recent bars.
func (s *Service) Digest(ctx context.Context, id string, lookbackBars int) (*model.TopicDigest, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if lookbackBars <= 0 {
		lookbackBars = 12
	}
	bars, err := s.GetBars(ctx, id, t.Resolution, lookbackBars, true)
	if err != nil {
		return nil, err
	}
	// Empty windows carry no signal for the narrative.
	withPosts := bars[:0:0]
	for _, b := range bars {
		if b.PostCount > 0 {
			withPosts = append(withPosts, b)
		}
	}
	return s.digests.Digest(ctx, t, withPosts)
}

// Health reports service status and topic counts.
func (s *Service) Health() Health {
	total, active := s.registry.Counts()
	return Health{Status: "healthy", TopicsCount: total, ActiveTopics: active}
}

func stripSummaries(bars []model.Bar, withSummaries bool) []model.Bar {
	if withSummaries {
		return bars
	}
	out := make([]model.Bar, len(bars))
	for i, b := range bars {
		out[i] = b.WithoutSummary()
	}
	return out
}
