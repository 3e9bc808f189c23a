package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestDetectCycles(t *testing.T) {
	cfg := domain.DefaultEngineConfig()

	t.Run("Triangle", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "C", 95, 1),
			tf("t3", "C", "A", 90, 2),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 {
			t.Fatalf("expected 1 cycle, got %d", len(hits))
		}

		hit := hits[0]
		if hit.Tag != "cycle_length_3" {
			t.Errorf("expected tag cycle_length_3, got %s", hit.Tag)
		}
		if hit.RingPattern != domain.RingPatternCycle {
			t.Errorf("expected ring pattern cycle, got %s", hit.RingPattern)
		}
		if hit.CycleLength != 3 {
			t.Errorf("expected cycle length 3, got %d", hit.CycleLength)
		}

		want := []string{"A", "B", "C"}
		for i, m := range want {
			if hit.Members[i] != m {
				t.Errorf("member[%d]: expected %s, got %s", i, m, hit.Members[i])
			}
		}
	})

	t.Run("CanonicalRotation", func(t *testing.T) {
		// Same triangle but the batch introduces B first, so the DFS
		// discovers the cycle as B->C->A. The hit must still start at A.
		v := view(
			tf("t1", "B", "C", 100, 0),
			tf("t2", "C", "A", 95, 1),
			tf("t3", "A", "B", 90, 2),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 {
			t.Fatalf("expected 1 cycle, got %d", len(hits))
		}
		want := []string{"A", "B", "C"}
		for i, m := range want {
			if hits[0].Members[i] != m {
				t.Errorf("member[%d]: expected %s, got %s", i, m, hits[0].Members[i])
			}
		}
	})

	t.Run("TwoHopLoopTooShort", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "A", 100, 1),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 0 {
			t.Fatalf("A->B->A is below the minimum length, got %d hits", len(hits))
		}
	})

	t.Run("SixHopLoopTooLong", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "C", 100, 1),
			tf("t3", "C", "D", 100, 2),
			tf("t4", "D", "E", 100, 3),
			tf("t5", "E", "F", 100, 4),
			tf("t6", "F", "A", 100, 5),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 0 {
			t.Fatalf("six-hop loop exceeds the maximum length, got %d hits", len(hits))
		}
	})

	t.Run("MaxLengthBoundary", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "C", 100, 1),
			tf("t3", "C", "D", 100, 2),
			tf("t4", "D", "E", 100, 3),
			tf("t5", "E", "A", 100, 4),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 {
			t.Fatalf("expected the five-hop loop to be reported, got %d hits", len(hits))
		}
		if hits[0].CycleLength != 5 {
			t.Errorf("expected cycle length 5, got %d", hits[0].CycleLength)
		}
	})

	t.Run("DisjointCycles", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "C", 100, 1),
			tf("t3", "C", "A", 100, 2),
			tf("t4", "X", "Y", 100, 3),
			tf("t5", "Y", "Z", 100, 4),
			tf("t6", "Z", "X", 100, 5),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 2 {
			t.Fatalf("expected 2 cycles, got %d", len(hits))
		}
		if hits[0].Members[0] != "A" || hits[1].Members[0] != "X" {
			t.Errorf("unexpected cycle order: %v, %v", hits[0].Members, hits[1].Members)
		}
	})

	t.Run("NoCycle", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "C", 100, 1),
		)

		hits, err := DetectCycles(v, cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 0 {
			t.Fatalf("expected no cycles in a chain, got %d", len(hits))
		}
	})

	t.Run("BudgetExhaustion", func(t *testing.T) {
		v := view(
			tf("t1", "A", "B", 100, 0),
			tf("t2", "B", "C", 100, 1),
			tf("t3", "C", "A", 100, 2),
		)

		_, err := DetectCycles(v, cfg, NewBudget(context.Background(), 1))
		if !errors.Is(err, ErrBudgetExhausted) {
			t.Fatalf("expected ErrBudgetExhausted, got %v", err)
		}
	})
}

func TestCanonicalize(t *testing.T) {
	got := canonicalize([]string{"C", "A", "B"})
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
