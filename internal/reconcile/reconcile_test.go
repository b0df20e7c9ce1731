package reconcile

import (
	"fmt"
	"testing"
)

func ids(prefix string, n int) map[string]bool {
	set := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		set[fmt.Sprintf("%s-%d", prefix, i)] = true
	}
	return set
}

func TestDiff_Partition(t *testing.T) {
	existing := IdentitySet([]string{"A", "B", "C"})
	discovered := IdentitySet([]string{"B", "C", "D"})

	res := New(0.5).Diff(discovered, existing)

	if len(res.ToEnrich) != 1 || res.ToEnrich[0] != "D" {
		t.Errorf("ToEnrich = %v, want [D]", res.ToEnrich)
	}
	if len(res.ToRemove) != 1 || res.ToRemove[0] != "A" {
		t.Errorf("ToRemove = %v, want [A]", res.ToRemove)
	}
	if len(res.Unchanged) != 2 {
		t.Errorf("Unchanged = %v, want B and C", res.Unchanged)
	}
	if res.GuardTriggered {
		t.Error("guard should not trigger: discovered 3 of 3 existing")
	}

	// The three sets must partition discovered ∪ existing with no overlap.
	all := make(map[string]int)
	for _, id := range res.ToEnrich {
		all[id]++
	}
	for _, id := range res.ToRemove {
		all[id]++
	}
	for _, id := range res.Unchanged {
		all[id]++
	}
	union := map[string]bool{"A": true, "B": true, "C": true, "D": true}
	if len(all) != len(union) {
		t.Errorf("partition covers %d ids, want %d", len(all), len(union))
	}
	for id, count := range all {
		if count != 1 {
			t.Errorf("id %s appears %d times across partitions", id, count)
		}
		if !union[id] {
			t.Errorf("id %s not in discovered ∪ existing", id)
		}
	}
}

func TestDiff_GuardTriggers(t *testing.T) {
	existing := ids("job", 100)
	discovered := ids("job", 40) // 40 < 0.5 × 100

	res := New(0.5).Diff(discovered, existing)

	if !res.GuardTriggered {
		t.Fatal("guard should trigger at 40% discovery")
	}
	if len(res.ToRemove) != 0 {
		t.Errorf("ToRemove = %d ids, want 0 when guard fires", len(res.ToRemove))
	}
	// All 100 existing records survive: 40 unchanged, 60 protected from removal.
	if len(res.Unchanged) != 40 {
		t.Errorf("Unchanged = %d, want 40", len(res.Unchanged))
	}
	if len(res.ToEnrich) != 0 {
		t.Errorf("ToEnrich = %d, want 0", len(res.ToEnrich))
	}
}

func TestDiff_GuardDoesNotTrigger(t *testing.T) {
	existing := ids("job", 100)
	discovered := ids("job", 90) // 90 ≥ 0.5 × 100

	res := New(0.5).Diff(discovered, existing)

	if res.GuardTriggered {
		t.Fatal("guard should not trigger at 90% discovery")
	}
	if len(res.ToRemove) != 10 {
		t.Errorf("ToRemove = %d, want 10", len(res.ToRemove))
	}
}

func TestDiff_EmptySnapshotNeverGuards(t *testing.T) {
	res := New(0.5).Diff(IdentitySet([]string{"X"}), map[string]bool{})
	if res.GuardTriggered {
		t.Error("guard must not trigger on first run with empty snapshot")
	}
	if len(res.ToEnrich) != 1 {
		t.Errorf("ToEnrich = %v, want [X]", res.ToEnrich)
	}
}

func TestDiff_IdempotentRerun(t *testing.T) {
	set := ids("job", 25)
	res := New(0.5).Diff(set, set)
	if len(res.ToEnrich) != 0 || len(res.ToRemove) != 0 {
		t.Errorf("rerun with no change: ToEnrich=%d ToRemove=%d, want 0/0", len(res.ToEnrich), len(res.ToRemove))
	}
	if len(res.Unchanged) != 25 {
		t.Errorf("Unchanged = %d, want 25", len(res.Unchanged))
	}
}

func TestNew_ThresholdClamp(t *testing.T) {
	// Out-of-range thresholds fall back to the default rather than disabling
	// the fail-safe.
	for _, bad := range []float64{0, -1, 1.5} {
		r := New(bad)
		res := r.Diff(ids("job", 10), ids("job", 100))
		if !res.GuardTriggered {
			t.Errorf("threshold %v: guard should still protect under-discovery", bad)
		}
	}
}

func TestIdentitySet_SkipsEmpty(t *testing.T) {
	set := IdentitySet([]string{"a", "", "b", ""})
	if len(set) != 2 {
		t.Errorf("set size = %d, want 2", len(set))
	}
}
