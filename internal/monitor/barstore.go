package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// BarStore caches bars keyed by (topic, resolution, bar start). Per
// (topic, resolution) the cache holds bars in start order and evicts oldest
// past maxPerResolution.
type BarStore struct {
	mu   sync.RWMutex
	bars map[string]map[string][]model.Bar // topic -> resolution -> bars sorted by Start asc

	maxPerResolution int
}

// NewBarStore creates a BarStore capping each (topic, resolution) series at
// maxPerResolution bars.
func NewBarStore(maxPerResolution int) *BarStore {
	return &BarStore{
		bars:             make(map[string]map[string][]model.Bar),
		maxPerResolution: maxPerResolution,
	}
}

// Put upserts the bar at its (topic, resolution, start) key. An incoming bar
// without a summary never displaces a stored bar that has one.
func (s *BarStore) Put(bar model.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRes := s.bars[bar.Topic]
	if byRes == nil {
		byRes = make(map[string][]model.Bar)
		s.bars[bar.Topic] = byRes
	}
	series := byRes[bar.Resolution]

	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Start.Before(bar.Start)
	})
	if i < len(series) && series[i].Start.Equal(bar.Start) {
		if bar.Summary == nil && series[i].Summary != nil {
			return
		}
		series[i] = bar
		return
	}

	series = append(series, model.Bar{})
	copy(series[i+1:], series[i:])
	series[i] = bar
	if len(series) > s.maxPerResolution {
		series = series[len(series)-s.maxPerResolution:]
	}
	byRes[bar.Resolution] = series
}

// Get returns up to limit bars for the key, sorted by start descending.
func (s *BarStore) Get(topic, resolution string, limit int) []model.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[topic][resolution]
	n := len(series)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Bar, 0, n)
	for i := len(series) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, series[i])
	}
	return out
}

// Latest returns the most recent bar for the key.
func (s *BarStore) Latest(topic, resolution string) (model.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[topic][resolution]
	if len(series) == 0 {
		return model.Bar{}, false
	}
	return series[len(series)-1], true
}

// HasSummarized reports whether a bar with an attached summary exists at the
// exact (topic, resolution, start) key.
func (s *BarStore) HasSummarized(topic, resolution string, start time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[topic][resolution]
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Start.Before(start)
	})
	return i < len(series) && series[i].Start.Equal(start) && series[i].Summary != nil
}

// Clear removes every cached bar for topic.
func (s *BarStore) Clear(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bars, topic)
}
