package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// csvColumns is the required header, in order.
var csvColumns = []string{"id", "sender", "receiver", "amount", "timestamp"}

// ParseCSV reads a transfer batch from CSV. The first row must be the
// header `id,sender,receiver,amount,timestamp`; rows go through the same
// validation as JSON submissions.
func ParseCSV(r io.Reader) ([]*domain.Transfer, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidTransfer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var records []domain.TransferRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		amount, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: unparseable amount %q", len(records)+1, ErrInvalidTransfer, row[3])
		}

		records = append(records, domain.TransferRecord{
			ID:        row[0],
			Sender:    row[1],
			Receiver:  row[2],
			Amount:    amount,
			Timestamp: row[4],
		})
	}

	return Validate(records)
}

func checkHeader(header []string) error {
	if len(header) < len(csvColumns) {
		return fmt.Errorf("%w: expected header %s", ErrInvalidTransfer, strings.Join(csvColumns, ","))
	}
	for i, col := range csvColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != col {
			return fmt.Errorf("%w: expected column %d to be %q, got %q", ErrInvalidTransfer, i, col, header[i])
		}
	}
	return nil
}
