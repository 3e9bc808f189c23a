package engine

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/ring"
)

// assemble produces the rendering-ready result: one node per account with
// its stats and flags, one edge per raw transfer. Edges stay unaggregated;
// collapsing parallel edges by (source, target) is the renderer's job.
func assemble(batch *domain.TransferBatch, view *graph.View, agg *ring.Aggregator, accounts []domain.SuspiciousAccount) *domain.AnalysisResult {
	scores := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		scores[a.AccountID] = a.SuspicionScore
	}

	nodes := make([]domain.GraphNode, 0, len(view.Accounts))
	for _, id := range view.Accounts {
		stats := view.Stats[id]
		node := domain.GraphNode{
			ID:        id,
			InDegree:  stats.InDegree,
			OutDegree: stats.OutDegree,
			TotalIn:   stats.TotalIn,
			TotalOut:  stats.TotalOut,
			TxCount:   stats.TxCount,
		}
		if member := agg.MembershipOf(id); member != nil {
			node.Suspicious = true
			node.SuspicionScore = scores[id]
			node.RingIDs = append([]string(nil), member.RingIDs...)
		}
		nodes = append(nodes, node)
	}

	edges := make([]domain.GraphEdge, 0, len(batch.Transfers))
	for _, t := range batch.Transfers {
		edges = append(edges, domain.GraphEdge{
			Source:     t.Sender,
			Target:     t.Receiver,
			Amount:     t.Amount,
			Timestamp:  t.Timestamp,
			TransferID: t.ID,
		})
	}

	return &domain.AnalysisResult{
		SuspiciousAccounts: accounts,
		FraudRings:         agg.Rings(),
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     len(view.Accounts),
			SuspiciousAccountsFlagged: len(accounts),
			FraudRingsDetected:        len(agg.Rings()),
		},
		Graph: domain.GraphView{Nodes: nodes, Edges: edges},
	}
}
