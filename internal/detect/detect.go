// Package detect implements the pattern detectors and false-positive
// classifiers that run over the shared adjacency view.
package detect

import (
	"context"
	"errors"
)

// ErrBudgetExhausted is returned when a graph search exceeds its node-visit
// budget. The analysis fails loudly instead of hanging on pathological
// dense graphs.
var ErrBudgetExhausted = errors.New("detect: search budget exhausted")

// ctxCheckInterval is how many visits pass between context checks.
// ctx.Err involves an atomic load, so the hot path only pays for it
// once per interval.
const ctxCheckInterval = 1024

// Budget caps the total work done by the unbounded-in-theory searches
// (cycle and shell chains) and periodically observes the analysis
// deadline. A limit <= 0 leaves the visit count uncapped; the context
// is still checked. A nil Budget means no limits at all.
type Budget struct {
	ctx       context.Context
	remaining int
	unlimited bool
	visits    int
}

// NewBudget returns a budget allowing limit visits under ctx.
func NewBudget(ctx context.Context, limit int) *Budget {
	return &Budget{
		ctx:       ctx,
		remaining: limit,
		unlimited: limit <= 0,
	}
}

// Spend consumes one unit. It reports ErrBudgetExhausted once the cap is
// depleted, and the context error once the deadline passes or the
// analysis is canceled.
func (b *Budget) Spend() error {
	if b == nil {
		return nil
	}

	b.visits++
	if b.visits%ctxCheckInterval == 0 {
		if err := b.ctx.Err(); err != nil {
			return err
		}
	}

	if b.unlimited {
		return nil
	}
	if b.remaining <= 0 {
		return ErrBudgetExhausted
	}
	b.remaining--
	return nil
}
