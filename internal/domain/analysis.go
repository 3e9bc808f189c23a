package domain

import (
	"time"
)

// Pattern tags attached to detector hits and suspicious accounts.
const (
	PatternFanIn        = "fan_in"
	PatternFanOut       = "fan_out"
	PatternShellNetwork = "shell_network"
	PatternHighVelocity = "high_velocity"

	// Cycle tags carry the cycle length: cycle_length_3 .. cycle_length_5.
	PatternCyclePrefix = "cycle_length_"
)

// Ring pattern types recorded on FraudRing.
const (
	RingPatternCycle    = "cycle"
	RingPatternSmurfing = "smurfing"
	RingPatternShell    = "shell_network"
)

// PatternHit is one candidate pattern instance produced by a detector.
// Hits are transient: the aggregator folds them into rings and discards them.
type PatternHit struct {
	// Members lists the involved account ids in detection order.
	// For cycles this is the rotated canonical sequence.
	Members []string

	// Tag is the per-account pattern tag (cycle_length_N, fan_in, fan_out,
	// shell_network).
	Tag string

	// RingPattern is the coarse pattern type recorded on the resulting ring.
	RingPattern string

	// CycleLength is set for cycle hits only and drives the base score.
	CycleLength int
}

// FraudRing is a deduplicated group of accounts sharing one detected
// pattern instance.
type FraudRing struct {
	RingID         string   `json:"ringId"`
	MemberAccounts []string `json:"memberAccounts"`
	PatternType    string   `json:"patternType"`
	RiskScore      float64  `json:"riskScore"`
}

// SuspiciousAccount is one flagged account with its composite score.
type SuspiciousAccount struct {
	AccountID        string   `json:"accountId"`
	SuspicionScore   float64  `json:"suspicionScore"`
	DetectedPatterns []string `json:"detectedPatterns"`

	// RingID is the first ring the account was assigned to, not
	// necessarily its highest-risk ring.
	RingID string `json:"ringId"`
}

// GraphNode is the per-account view handed to external renderers.
type GraphNode struct {
	ID             string   `json:"id"`
	Suspicious     bool     `json:"suspicious"`
	SuspicionScore float64  `json:"suspicionScore"`
	RingIDs        []string `json:"ringIds,omitempty"`
	InDegree       int      `json:"inDegree"`
	OutDegree      int      `json:"outDegree"`
	TotalIn        float64  `json:"totalIn"`
	TotalOut       float64  `json:"totalOut"`
	TxCount        int      `json:"txCount"`
}

// GraphEdge is one raw transfer. Edges are deliberately not aggregated by
// (source, target); that is the renderer's concern.
type GraphEdge struct {
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
	TransferID string    `json:"transferId"`
}

// GraphView is the rendering-ready output graph.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Summary holds the analysis counters.
type Summary struct {
	TotalAccountsAnalyzed     int   `json:"totalAccountsAnalyzed"`
	SuspiciousAccountsFlagged int   `json:"suspiciousAccountsFlagged"`
	FraudRingsDetected        int   `json:"fraudRingsDetected"`
	ProcessingMs              int64 `json:"processingMs"`
}

// AnalysisResult is the complete typed result of one batch analysis.
type AnalysisResult struct {
	ID                 string              `json:"id"`
	TenantID           string              `json:"tenantId"`
	BatchID            string              `json:"batchId"`
	SuspiciousAccounts []SuspiciousAccount `json:"suspiciousAccounts"`
	FraudRings         []FraudRing         `json:"fraudRings"`
	Summary            Summary             `json:"summary"`
	Graph              GraphView           `json:"graph"`
	Timestamp          time.Time           `json:"timestamp"`
}
