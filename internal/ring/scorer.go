package ring

import (
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Suspicion score components.
const (
	cycleBonus     = 35
	fanInBonus     = 25
	fanOutBonus    = 25
	shellBonus     = 20
	multiRingBonus = 15
	velocityBonus  = 15
	maxSuspicion   = 100
)

// Scorer turns accumulated ring membership into ranked suspicious
// accounts.
type Scorer struct {
	velocityThreshold int
	velocityWindow    time.Duration
}

// NewScorer creates a scorer with the engine's velocity settings.
func NewScorer(cfg domain.EngineConfig) *Scorer {
	return &Scorer{
		velocityThreshold: cfg.VelocityThreshold,
		velocityWindow:    cfg.VelocityWindow,
	}
}

// Score builds the final suspicious-account list from the aggregator's
// membership, sorted descending by score. The sort is stable, so accounts
// with equal scores keep their first-flagged order.
func (s *Scorer) Score(agg *Aggregator, transfers []*domain.Transfer) []domain.SuspiciousAccount {
	byAccount := indexTransfers(transfers)

	accounts := make([]domain.SuspiciousAccount, 0, len(agg.Flagged()))
	for _, id := range agg.Flagged() {
		member := agg.MembershipOf(id)

		score := 0.0
		patterns := append([]string(nil), member.Patterns...)

		if hasCycleTag(patterns) {
			score += cycleBonus
		}
		if contains(patterns, domain.PatternFanIn) {
			score += fanInBonus
		}
		if contains(patterns, domain.PatternFanOut) {
			score += fanOutBonus
		}
		if contains(patterns, domain.PatternShellNetwork) {
			score += shellBonus
		}
		if len(member.RingIDs) > 1 {
			score += multiRingBonus
		}

		if s.highVelocity(byAccount[id]) {
			score += velocityBonus
			patterns = append(patterns, domain.PatternHighVelocity)
		}

		if score > maxSuspicion {
			score = maxSuspicion
		}

		// Sorted tags keep the output stable regardless of which
		// detector flagged the account first.
		sort.Strings(patterns)

		accounts = append(accounts, domain.SuspiciousAccount{
			AccountID:        id,
			SuspicionScore:   score,
			DetectedPatterns: patterns,
			RingID:           member.RingIDs[0],
		})
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].SuspicionScore > accounts[j].SuspicionScore
	})

	return accounts
}

// highVelocity reports whether more than the threshold number of transfers
// touching the account fall inside any single velocity window.
func (s *Scorer) highVelocity(stamps []time.Time) bool {
	if len(stamps) <= s.velocityThreshold {
		return false
	}

	sorted := append([]time.Time(nil), stamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for anchor := 0; anchor < len(sorted); anchor++ {
		end := sorted[anchor].Add(s.velocityWindow)
		count := 0
		for i := anchor; i < len(sorted) && !sorted[i].After(end); i++ {
			count++
		}
		if count > s.velocityThreshold {
			return true
		}
	}
	return false
}

// indexTransfers collects the timestamps of every transfer touching each
// account. A self-transfer is one transfer, not two.
func indexTransfers(transfers []*domain.Transfer) map[string][]time.Time {
	idx := make(map[string][]time.Time)
	for _, t := range transfers {
		idx[t.Sender] = append(idx[t.Sender], t.Timestamp)
		if t.Receiver != t.Sender {
			idx[t.Receiver] = append(idx[t.Receiver], t.Timestamp)
		}
	}
	return idx
}

func hasCycleTag(patterns []string) bool {
	for _, p := range patterns {
		if strings.HasPrefix(p, domain.PatternCyclePrefix) {
			return true
		}
	}
	return false
}

func contains(patterns []string, tag string) bool {
	for _, p := range patterns {
		if p == tag {
			return true
		}
	}
	return false
}
