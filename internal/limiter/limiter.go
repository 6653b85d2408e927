// Package limiter provides a multi-category rate limiter shared by every
// upstream-API caller. Each category carries its own budget and strategy;
// acquiring from an unconfigured category fails open with a warning.
package limiter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Strategy selects how a category's budget is enforced.
type Strategy string

const (
	SlidingWindow Strategy = "sliding_window"
	FixedWindow   Strategy = "fixed_window"
	TokenBucket   Strategy = "token_bucket"
)

// Config is the per-category budget: RequestsPerWindow grants per Window.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	Strategy          Strategy
}

type fixedState struct {
	windowStart int64 // unix seconds of the current window's start
	count       int
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter routes requests through named categories. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	configs map[string]Config
	sliding map[string][]time.Time
	fixed   map[string]*fixedState
	buckets map[string]*bucketState

	// Overridable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an empty Limiter; categories are installed with Configure.
func New() *Limiter {
	return &Limiter{
		configs: make(map[string]Config),
		sliding: make(map[string][]time.Time),
		fixed:   make(map[string]*fixedState),
		buckets: make(map[string]*bucketState),
		now:     time.Now,
		sleep:   sleepCtx,
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

// Configure installs or replaces the budget for a category. Idempotent.
func (l *Limiter) Configure(category string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[category] = cfg
	if cfg.Strategy == TokenBucket {
		l.buckets[category] = &bucketState{
			tokens:     float64(cfg.RequestsPerWindow),
			lastRefill: l.now(),
		}
	}
	slog.Info("rate limit configured",
		"category", category,
		"requests", cfg.RequestsPerWindow,
		"window", cfg.Window,
		"strategy", string(cfg.Strategy),
	)
}

// Acquire blocks until one unit of the category's budget is available, then
// charges it. Returns early with the context's error if ctx is cancelled
// while waiting; nothing is charged on that path. Unknown categories are
// admitted immediately.
func (l *Limiter) Acquire(ctx context.Context, category string) error {
	l.mu.Lock()
	cfg, ok := l.configs[category]
	if !ok {
		l.mu.Unlock()
		slog.Warn("no rate limit configured, allowing request", "category", category)
		return nil
	}

	for {
		wait := l.tryCharge(category, cfg)
		if wait <= 0 {
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		slog.Debug("rate limited", "category", category, "wait", wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.mu.Lock()
	}
}

// tryCharge attempts to charge one unit under l.mu. It returns 0 on success
// or the duration to wait before retrying.
func (l *Limiter) tryCharge(category string, cfg Config) time.Duration {
	now := l.now()
	switch cfg.Strategy {
	case FixedWindow:
		return l.tryFixed(category, cfg, now)
	case TokenBucket:
		return l.tryBucket(category, cfg, now)
	default:
		return l.trySliding(category, cfg, now)
	}
}

func (l *Limiter) trySliding(category string, cfg Config, now time.Time) time.Duration {
	grants := l.sliding[category]
	live := grants[:0]
	for _, g := range grants {
		if now.Sub(g) < cfg.Window {
			live = append(live, g)
		}
	}
	l.sliding[category] = live

	if len(live) < cfg.RequestsPerWindow {
		l.sliding[category] = append(live, now)
		return 0
	}
	oldest := live[0]
	for _, g := range live[1:] {
		if g.Before(oldest) {
			oldest = g
		}
	}
	return oldest.Add(cfg.Window).Sub(now)
}

func (l *Limiter) tryFixed(category string, cfg Config, now time.Time) time.Duration {
	windowSecs := int64(cfg.Window / time.Second)
	windowStart := now.Unix() / windowSecs * windowSecs

	st := l.fixed[category]
	if st == nil || st.windowStart != windowStart {
		st = &fixedState{windowStart: windowStart}
		l.fixed[category] = st
	}
	if st.count < cfg.RequestsPerWindow {
		st.count++
		return 0
	}
	next := time.Unix(windowStart+windowSecs, 0)
	return next.Sub(now)
}

func (l *Limiter) tryBucket(category string, cfg Config, now time.Time) time.Duration {
	st := l.buckets[category]
	if st == nil {
		st = &bucketState{tokens: float64(cfg.RequestsPerWindow), lastRefill: now}
		l.buckets[category] = st
	}

	rate := float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()
	elapsed := now.Sub(st.lastRefill).Seconds()
	st.tokens = min(float64(cfg.RequestsPerWindow), st.tokens+elapsed*rate)
	st.lastRefill = now

	if st.tokens >= 1 {
		st.tokens--
		return 0
	}
	waitSecs := (1 - st.tokens) / rate
	return time.Duration(waitSecs * float64(time.Second))
}

// Remaining returns the best-effort current headroom for a category. It
// never exceeds the configured limit; unconfigured categories report -1.
func (l *Limiter) Remaining(category string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, ok := l.configs[category]
	if !ok {
		return -1
	}
	now := l.now()

	switch cfg.Strategy {
	case FixedWindow:
		windowSecs := int64(cfg.Window / time.Second)
		windowStart := now.Unix() / windowSecs * windowSecs
		if st := l.fixed[category]; st != nil && st.windowStart == windowStart {
			return max(0, cfg.RequestsPerWindow-st.count)
		}
		return cfg.RequestsPerWindow
	case TokenBucket:
		st := l.buckets[category]
		if st == nil {
			return cfg.RequestsPerWindow
		}
		rate := float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()
		tokens := min(float64(cfg.RequestsPerWindow), st.tokens+now.Sub(st.lastRefill).Seconds()*rate)
		return int(tokens)
	default:
		n := 0
		for _, g := range l.sliding[category] {
			if now.Sub(g) < cfg.Window {
				n++
			}
		}
		return max(0, cfg.RequestsPerWindow-n)
	}
}
