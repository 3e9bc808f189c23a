// Package ingest validates raw transfer input and hands the engine a
// clean, ordered batch. The engine itself assumes validated input; this
// is the only place malformed records are rejected.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidTransfer wraps every per-record validation failure.
var ErrInvalidTransfer = errors.New("invalid transfer record")

// Validate converts wire-form records into an ordered transfer sequence,
// preserving input order. The first invalid record fails the whole batch;
// partial ingestion would silently change detection output.
func Validate(records []domain.TransferRecord) ([]*domain.Transfer, error) {
	transfers := make([]*domain.Transfer, 0, len(records))
	seen := make(map[string]bool, len(records))

	for i, rec := range records {
		t, err := validateRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("record %d: %w: duplicate id %q", i, ErrInvalidTransfer, t.ID)
		}
		seen[t.ID] = true
		transfers = append(transfers, t)
	}

	return transfers, nil
}

func validateRecord(rec domain.TransferRecord) (*domain.Transfer, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidTransfer)
	}
	if rec.Sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidTransfer)
	}
	if rec.Receiver == "" {
		return nil, fmt.Errorf("%w: receiver is required", ErrInvalidTransfer)
	}
	if rec.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must be non-negative, got %f", ErrInvalidTransfer, rec.Amount)
	}

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable timestamp %q: %v", ErrInvalidTransfer, rec.Timestamp, err)
	}

	return &domain.Transfer{
		ID:        rec.ID,
		Sender:    rec.Sender,
		Receiver:  rec.Receiver,
		Amount:    rec.Amount,
		Timestamp: ts.UTC(),
	}, nil
}
