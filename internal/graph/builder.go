// Package graph builds the adjacency view and per-account aggregate
// statistics that every detector reads.
package graph

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Edge is one directed transfer edge. Forward edges point at the receiver,
// reverse edges point back at the sender.
type Edge struct {
	Counterparty string
	Amount       float64
	Timestamp    time.Time
	TransferID   string
}

// Stats holds the derived aggregates for one account. Built once per batch,
// never mutated afterward.
type Stats struct {
	InDegree  int
	OutDegree int
	TotalIn   float64
	TotalOut  float64

	// TxCount is in-degree plus out-degree.
	TxCount int
}

// View is the read-only adjacency structure shared by the detectors.
// Accounts preserves first-appearance order across the batch; detectors
// iterate it instead of ranging over maps so greedy first-match policies
// stay deterministic for a fixed input order.
type View struct {
	Forward  map[string][]Edge
	Reverse  map[string][]Edge
	Stats    map[string]Stats
	Accounts []string
}

// Build constructs the adjacency view from an ordered transfer batch.
// An account with zero transfers never appears in the view.
func Build(transfers []*domain.Transfer) *View {
	v := &View{
		Forward: make(map[string][]Edge, len(transfers)),
		Reverse: make(map[string][]Edge, len(transfers)),
		Stats:   make(map[string]Stats, len(transfers)),
	}

	seen := make(map[string]bool, len(transfers)*2)
	track := func(id string) {
		if !seen[id] {
			seen[id] = true
			v.Accounts = append(v.Accounts, id)
		}
	}

	for _, t := range transfers {
		track(t.Sender)
		track(t.Receiver)

		v.Forward[t.Sender] = append(v.Forward[t.Sender], Edge{
			Counterparty: t.Receiver,
			Amount:       t.Amount,
			Timestamp:    t.Timestamp,
			TransferID:   t.ID,
		})
		v.Reverse[t.Receiver] = append(v.Reverse[t.Receiver], Edge{
			Counterparty: t.Sender,
			Amount:       t.Amount,
			Timestamp:    t.Timestamp,
			TransferID:   t.ID,
		})
	}

	for _, id := range v.Accounts {
		out := v.Forward[id]
		in := v.Reverse[id]

		s := Stats{
			InDegree:  len(in),
			OutDegree: len(out),
		}
		for _, e := range in {
			s.TotalIn += e.Amount
		}
		for _, e := range out {
			s.TotalOut += e.Amount
		}
		s.TxCount = s.InDegree + s.OutDegree

		v.Stats[id] = s
	}

	return v
}
