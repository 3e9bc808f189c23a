// Package ring folds raw pattern hits into fraud rings and scores the
// accounts that belong to them.
package ring

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Base risk scores per pattern. Cycle rings add 3 points per cycle length
// on top of the base; every ring adds 2 points per surviving member.
const (
	cycleBaseScore    = 75
	cycleLengthFactor = 3
	smurfingBaseScore = 65
	shellBaseScore    = 70
	memberFactor      = 2
	maxRiskScore      = 100
)

// Membership tracks ring assignments and pattern tags per account, in the
// order accounts were first flagged.
type Membership struct {
	RingIDs  []string
	Patterns []string

	patternSet map[string]bool
}

// Aggregator deduplicates pattern hits into rings. Ring ids are sequential
// and never reused; accounts excluded by the classifiers are filtered out
// of membership before a ring is finalized, and a ring left with fewer
// than two members is discarded entirely.
type Aggregator struct {
	excluded detect.Exclusions

	rings      []domain.FraudRing
	membership map[string]*Membership
	flagged    []string // account ids in first-flag order
	nextRing   int
}

// NewAggregator creates an aggregator with the given exclusion set.
func NewAggregator(excluded detect.Exclusions) *Aggregator {
	return &Aggregator{
		excluded:   excluded,
		rings:      []domain.FraudRing{},
		membership: make(map[string]*Membership),
		nextRing:   1,
	}
}

// Add folds one pattern hit into the ring set. Hits must be added in the
// fixed detector order (cycles, fan-in, fan-out, shells) so ring ids are
// deterministic for a fixed batch.
func (a *Aggregator) Add(hit domain.PatternHit) {
	survivors := make([]string, 0, len(hit.Members))
	for _, m := range hit.Members {
		if _, out := a.excluded[m]; !out {
			survivors = append(survivors, m)
		}
	}
	if len(survivors) < 2 {
		return
	}

	ringID := fmt.Sprintf("RING_%03d", a.nextRing)
	a.nextRing++

	a.rings = append(a.rings, domain.FraudRing{
		RingID:         ringID,
		MemberAccounts: survivors,
		PatternType:    hit.RingPattern,
		RiskScore:      riskScore(hit, len(survivors)),
	})

	for _, m := range survivors {
		member, ok := a.membership[m]
		if !ok {
			member = &Membership{patternSet: make(map[string]bool)}
			a.membership[m] = member
			a.flagged = append(a.flagged, m)
		}
		member.RingIDs = append(member.RingIDs, ringID)
		if !member.patternSet[hit.Tag] {
			member.patternSet[hit.Tag] = true
			member.Patterns = append(member.Patterns, hit.Tag)
		}
	}
}

// Rings returns the finalized rings in assignment order.
func (a *Aggregator) Rings() []domain.FraudRing {
	return a.rings
}

// Flagged returns account ids in the order they were first flagged.
func (a *Aggregator) Flagged() []string {
	return a.flagged
}

// MembershipOf returns the accumulated membership for an account, or nil.
func (a *Aggregator) MembershipOf(account string) *Membership {
	return a.membership[account]
}

// riskScore computes min(100, base + 2*members). The cycle base is scaled
// by the full cycle length, not the surviving member count, because the
// pattern's strength comes from the loop that was found.
func riskScore(hit domain.PatternHit, members int) float64 {
	var base float64
	switch hit.RingPattern {
	case domain.RingPatternCycle:
		base = cycleBaseScore + cycleLengthFactor*float64(hit.CycleLength)
	case domain.RingPatternSmurfing:
		base = smurfingBaseScore
	case domain.RingPatternShell:
		base = shellBaseScore
	}

	score := base + memberFactor*float64(members)
	if score > maxRiskScore {
		return maxRiskScore
	}
	return score
}
