package detect

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// DetectSmurfing finds accounts that receive from (fan-in) or send to
// (fan-out) at least SmurfingThreshold distinct counterparties within any
// SmurfingWindow. Returns all fan-in hits followed by all fan-out hits.
//
// Detection is greedy: transfers for an account are scanned in timestamp
// order, each one anchoring a window [anchor, anchor+window]; the first
// window reaching the threshold produces the hit and ends the scan for
// that account and direction. An account therefore contributes at most one
// hit per direction.
func DetectSmurfing(v *graph.View, cfg domain.EngineConfig) []domain.PatternHit {
	hits := scanDirection(v, v.Reverse, cfg, domain.PatternFanIn)
	hits = append(hits, scanDirection(v, v.Forward, cfg, domain.PatternFanOut)...)
	return hits
}

func scanDirection(v *graph.View, adjacency map[string][]graph.Edge, cfg domain.EngineConfig, tag string) []domain.PatternHit {
	var hits []domain.PatternHit

	for _, account := range v.Accounts {
		edges := adjacency[account]
		if len(edges) < cfg.SmurfingThreshold {
			continue
		}

		// Sort a copy; the shared view is read-only. Stable sort keeps
		// same-timestamp edges in batch order.
		sorted := make([]graph.Edge, len(edges))
		copy(sorted, edges)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for anchor := 0; anchor < len(sorted); anchor++ {
			windowEnd := sorted[anchor].Timestamp.Add(cfg.SmurfingWindow)

			counterparties := make([]string, 0, cfg.SmurfingThreshold)
			distinct := make(map[string]bool)
			for i := anchor; i < len(sorted) && !sorted[i].Timestamp.After(windowEnd); i++ {
				cp := sorted[i].Counterparty
				if !distinct[cp] {
					distinct[cp] = true
					counterparties = append(counterparties, cp)
				}
			}

			if len(counterparties) >= cfg.SmurfingThreshold {
				members := make([]string, 0, len(counterparties)+1)
				members = append(members, account)
				members = append(members, counterparties...)
				hits = append(hits, domain.PatternHit{
					Members:     members,
					Tag:         tag,
					RingPattern: domain.RingPatternSmurfing,
				})
				break
			}
		}
	}

	return hits
}
