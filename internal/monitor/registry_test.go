package monitor

import (
	"errors"
	"testing"

	"github.com/evford/tickerwatch/internal/model"
)

func TestCreateDerivesID(t *testing.T) {
	r := NewRegistry()
	topic, err := r.Create("$TSLA", "$TSLA lang:en", "")
	if err != nil {
		t.Fatal(err)
	}
	if topic.ID != "tsla" {
		t.Errorf("id = %q, want tsla", topic.ID)
	}
	if topic.Resolution != model.DefaultResolution {
		t.Errorf("resolution = %q, want default", topic.Resolution)
	}
	if topic.Status != model.TopicActive {
		t.Errorf("status = %q, want active", topic.Status)
	}
}

func TestCreateRejections(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("$TSLA", "", "1m"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		label      string
		resolution string
		want       error
	}{
		{"duplicate derived id", "tsla", "", ErrConflict},
		{"unknown resolution", "btc", "2m", ErrInvalidResolution},
		{"empty label", "  ", "", ErrInvalidTopic},
		{"label with no id characters", "$ ", "", ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Create(tt.label, "", tt.resolution); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateDefaultsQueryToLabel(t *testing.T) {
	r := NewRegistry()
	topic, err := r.Create("$TSLA", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if topic.Query != "$TSLA" {
		t.Errorf("query = %q, want label", topic.Query)
	}
}

func TestPauseResume(t *testing.T) {
	r := NewRegistry()
	topic, _ := r.Create("tsla", "", "")

	if err := r.SetStatus(topic.ID, model.TopicPaused); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(topic.ID)
	if got.Status != model.TopicPaused {
		t.Errorf("status = %q, want paused", got.Status)
	}

	r.RecordError(topic.ID, "timeout")
	if err := r.SetStatus(topic.ID, model.TopicActive); err != nil {
		t.Fatal(err)
	}
	got, _ = r.Get(topic.ID)
	if got.Status != model.TopicActive || got.LastError != "" {
		t.Errorf("after resume: status = %q, last_error = %q", got.Status, got.LastError)
	}
}

func TestRecordPollRecoversErroredTopic(t *testing.T) {
	r := NewRegistry()
	topic, _ := r.Create("tsla", "", "")

	r.RecordError(topic.ID, "connection refused")
	got, _ := r.Get(topic.ID)
	if got.Status != model.TopicError || got.LastError == "" {
		t.Fatalf("after error: %+v", got)
	}

	r.RecordPoll(topic.ID, 42)
	got, _ = r.Get(topic.ID)
	if got.Status != model.TopicActive {
		t.Errorf("status = %q, want active after successful poll", got.Status)
	}
	if got.LastError != "" || got.PollCount != 1 || got.TickCount != 42 || got.LastPoll == nil {
		t.Errorf("poll bookkeeping: %+v", got)
	}
}

func TestPollableSkipsPaused(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Create("a", "", "")
	b, _ := r.Create("b", "", "")
	c, _ := r.Create("c", "", "")

	r.SetStatus(b.ID, model.TopicPaused)
	r.RecordError(c.ID, "boom")

	ids := []string{}
	for _, topic := range r.Pollable() {
		ids = append(ids, topic.ID)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != c.ID {
		t.Errorf("pollable = %v, want active and errored only", ids)
	}

	active := r.Active()
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("active = %v", active)
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	topic, _ := r.Create("tsla", "", "")

	removed, err := r.Remove(topic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed.Label != "tsla" {
		t.Errorf("removed = %+v", removed)
	}
	if _, err := r.Get(topic.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := r.Remove(topic.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestSetResolution(t *testing.T) {
	r := NewRegistry()
	topic, _ := r.Create("tsla", "", "1m")

	if err := r.SetResolution(topic.ID, "5m"); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(topic.ID)
	if got.Resolution != "5m" {
		t.Errorf("resolution = %q", got.Resolution)
	}

	if err := r.SetResolution(topic.ID, "2m"); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("err = %v, want ErrInvalidResolution", err)
	}
	if err := r.SetResolution("nope", "5m"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCounts(t *testing.T) {
	r := NewRegistry()
	r.Create("a", "", "")
	b, _ := r.Create("b", "", "")
	r.SetStatus(b.ID, model.TopicPaused)

	total, active := r.Counts()
	if total != 2 || active != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", total, active)
	}
}
