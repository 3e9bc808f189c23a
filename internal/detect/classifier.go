package detect

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Exclusions maps an account id to the label of the rule that excluded it.
// Excluded accounts never appear in ring membership.
type Exclusions map[string]string

// Classify runs the built-in false-positive rules over every account and
// returns the excluded set. Merchant is checked before payroll, so an
// account matching both carries the merchant label.
func Classify(v *graph.View, cfg domain.EngineConfig) Exclusions {
	excluded := make(Exclusions)

	for _, account := range v.Accounts {
		if isMerchant(v, account, cfg) {
			excluded[account] = domain.ExclusionMerchant
			continue
		}
		if isPayroll(v, account, cfg) {
			excluded[account] = domain.ExclusionPayroll
		}
	}

	return excluded
}

// isMerchant flags accounts that look like payment endpoints: heavy
// inbound degree from many distinct senders spread over more than a week.
func isMerchant(v *graph.View, account string, cfg domain.EngineConfig) bool {
	incoming := v.Reverse[account]
	if len(incoming) < cfg.MerchantMinInDegree {
		return false
	}

	senders := make(map[string]bool, len(incoming))
	earliest, latest := incoming[0].Timestamp, incoming[0].Timestamp
	for _, e := range incoming {
		senders[e.Counterparty] = true
		if e.Timestamp.Before(earliest) {
			earliest = e.Timestamp
		}
		if e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}

	if len(senders) < cfg.MerchantMinSenders {
		return false
	}
	return latest.Sub(earliest) > cfg.MerchantMinSpan
}

// isPayroll flags accounts with near-uniform outgoing amounts: enough
// outbound transfers and a coefficient of variation below the cutoff.
// Zero-mean payouts are skipped rather than divided by.
func isPayroll(v *graph.View, account string, cfg domain.EngineConfig) bool {
	outgoing := v.Forward[account]
	if len(outgoing) < cfg.PayrollMinOutDegree {
		return false
	}

	var sum float64
	for _, e := range outgoing {
		sum += e.Amount
	}
	mean := sum / float64(len(outgoing))
	if mean == 0 {
		return false
	}

	var variance float64
	for _, e := range outgoing {
		d := e.Amount - mean
		variance += d * d
	}
	variance /= float64(len(outgoing))

	return math.Sqrt(variance)/mean < cfg.PayrollMaxVariation
}
