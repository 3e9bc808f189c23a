package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var testBase = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func tf(id, sender, receiver string, amount float64, hours float64) *domain.Transfer {
	return &domain.Transfer{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: testBase.Add(time.Duration(hours * float64(time.Hour))),
	}
}

func batch(transfers ...*domain.Transfer) *domain.TransferBatch {
	return &domain.TransferBatch{
		ID:        "batch-1",
		TenantID:  "tenant-1",
		Transfers: transfers,
		CreatedAt: testBase,
	}
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	a := New(domain.DefaultEngineConfig(), nil)

	result, err := a.Analyze(context.Background(), batch())
	if err != nil {
		t.Fatal(err)
	}

	if result.ID == "" {
		t.Error("expected a generated analysis id")
	}
	if result.TenantID != "tenant-1" || result.BatchID != "batch-1" {
		t.Errorf("batch identity not echoed: tenant=%s batch=%s", result.TenantID, result.BatchID)
	}

	s := result.Summary
	if s.TotalAccountsAnalyzed != 0 || s.SuspiciousAccountsFlagged != 0 || s.FraudRingsDetected != 0 {
		t.Errorf("expected zeroed counters, got %+v", s)
	}
	if result.SuspiciousAccounts == nil || len(result.SuspiciousAccounts) != 0 {
		t.Errorf("expected empty account list, got %v", result.SuspiciousAccounts)
	}
	if result.FraudRings == nil || len(result.FraudRings) != 0 {
		t.Errorf("expected empty ring list, got %v", result.FraudRings)
	}
}

func TestAnalyzeCycle(t *testing.T) {
	a := New(domain.DefaultEngineConfig(), nil)

	result, err := a.Analyze(context.Background(), batch(
		tf("t1", "A", "B", 1000, 0),
		tf("t2", "B", "C", 950, 1),
		tf("t3", "C", "A", 900, 2),
	))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Ring", func(t *testing.T) {
		if len(result.FraudRings) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(result.FraudRings))
		}
		r := result.FraudRings[0]
		if r.RingID != "RING_001" {
			t.Errorf("expected RING_001, got %s", r.RingID)
		}
		if r.PatternType != domain.RingPatternCycle {
			t.Errorf("expected pattern cycle, got %s", r.PatternType)
		}
		if r.RiskScore != 90 {
			t.Errorf("expected risk 90, got %.1f", r.RiskScore)
		}
	})

	t.Run("Accounts", func(t *testing.T) {
		if len(result.SuspiciousAccounts) != 3 {
			t.Fatalf("expected 3 flagged accounts, got %d", len(result.SuspiciousAccounts))
		}
		for _, acc := range result.SuspiciousAccounts {
			if acc.SuspicionScore != 35 {
				t.Errorf("%s: expected score 35, got %.1f", acc.AccountID, acc.SuspicionScore)
			}
			if acc.RingID != "RING_001" {
				t.Errorf("%s: expected ring RING_001, got %s", acc.AccountID, acc.RingID)
			}
		}
	})

	t.Run("Summary", func(t *testing.T) {
		s := result.Summary
		if s.TotalAccountsAnalyzed != 3 || s.SuspiciousAccountsFlagged != 3 || s.FraudRingsDetected != 1 {
			t.Errorf("unexpected summary: %+v", s)
		}
	})

	t.Run("Graph", func(t *testing.T) {
		if len(result.Graph.Nodes) != 3 {
			t.Fatalf("expected 3 nodes, got %d", len(result.Graph.Nodes))
		}
		if len(result.Graph.Edges) != 3 {
			t.Fatalf("expected 3 edges, got %d", len(result.Graph.Edges))
		}
		for _, n := range result.Graph.Nodes {
			if !n.Suspicious {
				t.Errorf("node %s should be marked suspicious", n.ID)
			}
			if len(n.RingIDs) != 1 || n.RingIDs[0] != "RING_001" {
				t.Errorf("node %s: unexpected ring ids %v", n.ID, n.RingIDs)
			}
		}
	})
}

func TestAnalyzeCleanBatch(t *testing.T) {
	a := New(domain.DefaultEngineConfig(), nil)

	result, err := a.Analyze(context.Background(), batch(
		tf("t1", "A", "B", 100, 0),
		tf("t2", "C", "D", 200, 1),
	))
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.TotalAccountsAnalyzed != 4 {
		t.Errorf("expected 4 accounts analyzed, got %d", result.Summary.TotalAccountsAnalyzed)
	}
	if len(result.FraudRings) != 0 || len(result.SuspiciousAccounts) != 0 {
		t.Errorf("clean batch produced findings: %d rings, %d accounts",
			len(result.FraudRings), len(result.SuspiciousAccounts))
	}
}

func TestAnalyzeDeadlineExceeded(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.AnalysisTimeout = time.Nanosecond

	a := New(cfg, nil)
	_, err := a.Analyze(context.Background(), batch(
		tf("t1", "A", "B", 100, 0),
		tf("t2", "B", "C", 100, 1),
		tf("t3", "C", "A", 100, 2),
	))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestAnalyzeBudgetExhausted(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.SearchBudget = 1

	a := New(cfg, nil)
	_, err := a.Analyze(context.Background(), batch(
		tf("t1", "A", "B", 100, 0),
		tf("t2", "B", "C", 100, 1),
		tf("t3", "C", "A", 100, 2),
	))
	if !errors.Is(err, detect.ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
}

func TestAnalyzeWithExclusionRules(t *testing.T) {
	exclusions, err := detect.NewExclusionEngine()
	if err != nil {
		t.Fatal(err)
	}
	if err := exclusions.LoadRules([]*domain.ExclusionRule{{
		ID:         "treasury",
		Name:       "treasury accounts",
		Version:    "1.0.0",
		Expression: `account == "C"`,
		Label:      "treasury",
		Enabled:    true,
	}}); err != nil {
		t.Fatal(err)
	}

	a := New(domain.DefaultEngineConfig(), exclusions)
	result, err := a.Analyze(context.Background(), batch(
		tf("t1", "A", "B", 1000, 0),
		tf("t2", "B", "C", 950, 1),
		tf("t3", "C", "A", 900, 2),
	))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.FraudRings) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(result.FraudRings))
	}
	if got := len(result.FraudRings[0].MemberAccounts); got != 2 {
		t.Fatalf("expected C filtered from membership, got %d members", got)
	}
	for _, acc := range result.SuspiciousAccounts {
		if acc.AccountID == "C" {
			t.Error("excluded account must not be flagged")
		}
	}
}
