package monitor

import (
	"testing"
	"time"

	"github.com/evford/tickerwatch/internal/model"
)

func makeTicks(base time.Time, ids ...string) []model.Tick {
	ticks := make([]model.Tick, len(ids))
	for i, id := range ids {
		ticks[i] = tick(id, base.Add(time.Duration(i)*time.Second), 1, 0, 0, 0)
	}
	return ticks
}

func TestAddDedupAcrossPolls(t *testing.T) {
	s := testTickStore(t, 1000)
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	// Two polls return overlapping sets of 5 ticks with 2 shared IDs.
	batchA := makeTicks(base, "a1", "a2", "a3", "s1", "s2")
	batchB := makeTicks(base.Add(time.Minute), "b1", "b2", "b3", "s1", "s2")

	n, err := s.Add("tsla", batchA)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("first add accepted %d, want 5", n)
	}
	n, err = s.Add("tsla", batchB)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("second add accepted %d, want 3", n)
	}

	count, err := s.Count("tsla")
	if err != nil {
		t.Fatal(err)
	}
	if count != 8 {
		t.Errorf("count = %d, want 8", count)
	}
}

func TestAddIdempotent(t *testing.T) {
	s := testTickStore(t, 1000)
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	batch := makeTicks(base, "1", "2", "3")

	if _, err := s.Add("tsla", batch); err != nil {
		t.Fatal(err)
	}
	n, err := s.Add("tsla", batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("repeat add accepted %d, want 0", n)
	}
}

func TestAddPrunesOldest(t *testing.T) {
	s := testTickStore(t, 3)
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	if _, err := s.Add("tsla", makeTicks(base, "1", "2", "3", "4", "5")); err != nil {
		t.Fatal(err)
	}

	count, err := s.Count("tsla")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want capped at 3", count)
	}

	ticks, err := s.Get("tsla", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ticks[0].ID != "3" || ticks[2].ID != "5" {
		t.Errorf("kept %q..%q, want the newest three", ticks[0].ID, ticks[2].ID)
	}
}

func TestGetHalfOpenSorted(t *testing.T) {
	s := testTickStore(t, 1000)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	batch := []model.Tick{
		tick("c", noon.Add(59*time.Second), 1, 0, 0, 0),
		tick("a", noon, 1, 0, 0, 0),
		tick("b", noon.Add(17*time.Second), 1, 0, 0, 0),
		tick("d", noon.Add(60*time.Second), 1, 0, 0, 0), // outside [noon, noon+60)
	}
	if _, err := s.Add("tsla", batch); err != nil {
		t.Fatal(err)
	}

	end := noon.Add(time.Minute)
	ticks, err := s.Get("tsla", &noon, &end)
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 3 {
		t.Fatalf("len = %d, want 3", len(ticks))
	}
	for i, want := range []string{"a", "b", "c"} {
		if ticks[i].ID != want {
			t.Errorf("ticks[%d].ID = %q, want %q", i, ticks[i].ID, want)
		}
	}
}

func TestGetBreaksTimestampTiesByID(t *testing.T) {
	s := testTickStore(t, 1000)
	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	batch := []model.Tick{
		tick("z", noon, 1, 0, 0, 0),
		tick("a", noon, 1, 0, 0, 0),
	}
	if _, err := s.Add("tsla", batch); err != nil {
		t.Fatal(err)
	}

	ticks, err := s.Get("tsla", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ticks[0].ID != "a" || ticks[1].ID != "z" {
		t.Errorf("order = [%q, %q], want id ascending on tie", ticks[0].ID, ticks[1].ID)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	s := testTickStore(t, 1000)
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	if _, err := s.Add("tsla", makeTicks(base, "1", "2")); err != nil {
		t.Fatal(err)
	}
	// Same tick IDs under another topic are distinct rows.
	n, err := s.Add("btc", makeTicks(base, "1", "2"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("accepted %d under second topic, want 2", n)
	}
}

func TestClearAndTimeRange(t *testing.T) {
	s := testTickStore(t, 1000)
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	if _, err := s.Add("tsla", makeTicks(base, "1", "2", "3")); err != nil {
		t.Fatal(err)
	}

	oldest, newest, ok, err := s.TimeRange("tsla")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("TimeRange ok = false with ticks present")
	}
	if !oldest.Equal(base) || !newest.Equal(base.Add(2*time.Second)) {
		t.Errorf("range = [%v, %v]", oldest, newest)
	}

	if err := s.Clear("tsla"); err != nil {
		t.Fatal(err)
	}
	count, err := s.Count("tsla")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count after clear = %d", count)
	}
	if _, _, ok, _ := s.TimeRange("tsla"); ok {
		t.Error("TimeRange ok = true after clear")
	}
}
