package detect

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// DetectCycles enumerates canonical directed cycles whose length falls in
// [MinCycleLength, MaxCycleLength].
//
// The search runs a depth-bounded DFS from every account not yet marked
// processed. Once a start account's search finishes, the account is marked
// processed and later searches never expand through it again. This bounds
// total work; the trade-off is that a cycle is attributed to whichever
// start account reaches it first in batch order, which is exactly why the
// adjacency view carries an insertion-ordered account list.
//
// Discovered cycles are rotated to begin at their lexicographically
// smallest member, so rotations of the same cycle collapse to one hit.
func DetectCycles(v *graph.View, cfg domain.EngineConfig, budget *Budget) ([]domain.PatternHit, error) {
	minLen := cfg.MinCycleLength
	maxLen := cfg.MaxCycleLength

	processed := make(map[string]bool, len(v.Accounts))
	seen := make(map[string]bool)
	var hits []domain.PatternHit

	// Explicit DFS stack; recursion would overflow on deep dense graphs.
	type frame struct {
		node string
		next int // index of the next forward edge to examine
	}

	for _, start := range v.Accounts {
		if processed[start] {
			continue
		}

		path := []string{start}
		onPath := map[string]bool{start: true}
		stack := []frame{{node: start}}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			edges := v.Forward[f.node]

			if f.next >= len(edges) {
				stack = stack[:len(stack)-1]
				// The root frame owns path[0]; only deeper frames pop it.
				if len(stack) > 0 {
					onPath[path[len(path)-1]] = false
					path = path[:len(path)-1]
				}
				continue
			}

			edge := edges[f.next]
			f.next++

			if err := budget.Spend(); err != nil {
				return nil, err
			}

			target := edge.Counterparty
			if target == start {
				if len(path) >= minLen && len(path) <= maxLen {
					canonical := canonicalize(path)
					key := strings.Join(canonical, "->")
					if !seen[key] {
						seen[key] = true
						hits = append(hits, domain.PatternHit{
							Members:     canonical,
							Tag:         fmt.Sprintf("%s%d", domain.PatternCyclePrefix, len(canonical)),
							RingPattern: domain.RingPatternCycle,
							CycleLength: len(canonical),
						})
					}
				}
				continue
			}

			if !onPath[target] && !processed[target] && len(path) < maxLen {
				path = append(path, target)
				onPath[target] = true
				stack = append(stack, frame{node: target})
			}
		}

		processed[start] = true
	}

	return hits, nil
}

// canonicalize rotates a cycle so it starts at its lexicographically
// smallest member. The relative order of members is preserved.
func canonicalize(cycle []string) []string {
	min := 0
	for i := 1; i < len(cycle); i++ {
		if cycle[i] < cycle[min] {
			min = i
		}
	}

	out := make([]string, 0, len(cycle))
	out = append(out, cycle[min:]...)
	out = append(out, cycle[:min]...)
	return out
}
