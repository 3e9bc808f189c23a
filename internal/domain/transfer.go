// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Transfer is a single fund movement inside a batch.
// Transfers are immutable once ingested; the engine never mutates them.
type Transfer struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// TransferBatch is a validated, ordered sequence of transfers submitted
// for analysis. Ordering matters: the detectors' greedy policies resolve
// ties by input order, so the same batch always yields the same result.
type TransferBatch struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId"`
	Transfers []*Transfer `json:"transfers"`
	CreatedAt time.Time   `json:"createdAt"`
}

// BatchRequest is the API request payload for batch submission.
type BatchRequest struct {
	Transfers []TransferRecord `json:"transfers"`
}

// TransferRecord is the wire form of a transfer before validation.
type TransferRecord struct {
	ID        string  `json:"id"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
}
