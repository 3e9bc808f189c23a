package detect

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// DetectShellNetworks follows chains of low-activity intermediary accounts
// reachable from a high-activity origin. A chain starts at an origin with
// more than ShellLowActivity total transactions, steps to a direct
// successor at or below that activity level, then extends greedily:
// the first unvisited low-activity successor wins each step; when none
// qualifies, at most one arbitrary unvisited successor is appended before
// the chain ends. Chains shorter than ShellMinChain are dropped.
//
// This is a single-path heuristic, not an exhaustive search: each
// (origin, first-shell-successor) pair yields at most one chain, and the
// chain followed depends on edge order within the batch.
func DetectShellNetworks(v *graph.View, cfg domain.EngineConfig, budget *Budget) ([]domain.PatternHit, error) {
	seen := make(map[string]bool)
	var hits []domain.PatternHit

	for _, origin := range v.Accounts {
		if v.Stats[origin].TxCount <= cfg.ShellLowActivity {
			continue
		}

		for _, first := range v.Forward[origin] {
			successor := first.Counterparty
			if v.Stats[successor].TxCount > cfg.ShellLowActivity || successor == origin {
				continue
			}

			if err := budget.Spend(); err != nil {
				return nil, err
			}

			chain := []string{origin, successor}
			visited := map[string]bool{origin: true, successor: true}

			for len(chain) < cfg.ShellMaxChain {
				if err := budget.Spend(); err != nil {
					return nil, err
				}

				tail := chain[len(chain)-1]

				var lowNext, anyNext string
				haveLow, haveAny := false, false
				for _, e := range v.Forward[tail] {
					if visited[e.Counterparty] {
						continue
					}
					if !haveAny {
						anyNext = e.Counterparty
						haveAny = true
					}
					if v.Stats[e.Counterparty].TxCount <= cfg.ShellLowActivity {
						lowNext = e.Counterparty
						haveLow = true
						break
					}
				}

				if haveLow {
					chain = append(chain, lowNext)
					visited[lowNext] = true
					continue
				}

				// Dead end for shells: take one last hop if there is one.
				if haveAny {
					chain = append(chain, anyNext)
				}
				break
			}

			if len(chain) < cfg.ShellMinChain {
				continue
			}

			key := strings.Join(chain, "->")
			if seen[key] {
				continue
			}
			seen[key] = true

			hits = append(hits, domain.PatternHit{
				Members:     chain,
				Tag:         domain.PatternShellNetwork,
				RingPattern: domain.RingPatternShell,
			})
		}
	}

	return hits, nil
}
