package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

// Registry owns the topic records. All accessors return copies so callers
// never hold a reference into the map.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*model.Topic

	// Overridable in tests.
	now func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]*model.Topic),
		now:    time.Now,
	}
}

// Create registers a new topic. The id is derived from the label; an empty
// resolution takes the default. Returns ErrConflict on a duplicate id and
// ErrInvalidResolution for a token outside the supported set.
func (r *Registry) Create(label, query, resolution string) (model.Topic, error) {
	if strings.TrimSpace(label) == "" {
		return model.Topic{}, fmt.Errorf("%w: label is required", ErrInvalidTopic)
	}
	if resolution == "" {
		resolution = model.DefaultResolution
	}
	if !model.ValidResolution(resolution) {
		return model.Topic{}, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	id := model.DeriveTopicID(label)
	if id == "" {
		return model.Topic{}, fmt.Errorf("%w: label %q yields an empty id", ErrInvalidTopic, label)
	}
	if query == "" {
		query = label
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[id]; ok {
		return model.Topic{}, fmt.Errorf("%w: %q", ErrConflict, id)
	}
	t := &model.Topic{
		ID:         id,
		Label:      label,
		Query:      query,
		Resolution: resolution,
		Status:     model.TopicActive,
		CreatedAt:  r.now().UTC(),
	}
	r.topics[id] = t
	return *t, nil
}

// Get returns the topic with the given id.
func (r *Registry) Get(id string) (model.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[id]
	if !ok {
		return model.Topic{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return *t, nil
}

// List returns all topics ordered by creation time, then id.
func (r *Registry) List() []model.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Active returns the topics currently in active status, in List order.
func (r *Registry) Active() []model.Topic {
	all := r.List()
	active := all[:0]
	for _, t := range all {
		if t.Status == model.TopicActive {
			active = append(active, t)
		}
	}
	return active
}

// Pollable returns the topics the poller should visit: active topics plus
// errored ones, which retry implicitly each cycle. Paused topics are skipped.
func (r *Registry) Pollable() []model.Topic {
	all := r.List()
	out := all[:0]
	for _, t := range all {
		if t.Status != model.TopicPaused {
			out = append(out, t)
		}
	}
	return out
}

// Remove deletes the topic and returns its final record.
func (r *Registry) Remove(id string) (model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return model.Topic{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(r.topics, id)
	return *t, nil
}

// SetStatus transitions the topic. Resuming clears a recorded error.
func (r *Registry) SetStatus(id string, status model.TopicStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	t.Status = status
	if status == model.TopicActive {
		t.LastError = ""
	}
	return nil
}

// SetResolution changes the topic's default read resolution.
func (r *Registry) SetResolution(id, resolution string) error {
	if !model.ValidResolution(resolution) {
		return fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	t.Resolution = resolution
	return nil
}

// RecordPoll marks a successful poll: last_poll, poll_count and tick_count
// advance and any recorded error clears. A topic in error status recovers to
// active; a paused topic stays paused.
func (r *Registry) RecordPoll(id string, totalTicks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return
	}
	now := r.now().UTC()
	t.LastPoll = &now
	t.PollCount++
	t.TickCount = totalTicks
	t.LastError = ""
	if t.Status == model.TopicError {
		t.Status = model.TopicActive
	}
}

// RecordError marks a failed poll. The topic stays registered so the next
// cycle (or an operator resume) can retry.
func (r *Registry) RecordError(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return
	}
	t.Status = model.TopicError
	t.LastError = msg
}

// Counts returns total and active topic counts for health reporting.
func (r *Registry) Counts() (total, active int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.topics {
		total++
		if t.Status == model.TopicActive {
			active++
		}
	}
	return total, active
}
