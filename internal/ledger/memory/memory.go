package memory

import (
	"context"
	"fmt"
	"sync"

	"clinic/internal/ledger"
)

var _ ledger.Writer = (*Store)(nil)

// Store keeps ledger rows in memory. The worker falls back to it when no
// spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows []ledger.Row
}

func New() *Store {
	return &Store{}
}

// AppendPaymentRow stores the row and returns a synthetic row reference.
func (s *Store) AppendPaymentRow(ctx context.Context, row ledger.Row) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if row.PaymentID <= 0 {
		return "", fmt.Errorf("payment id must be positive, got %d", row.PaymentID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the appended rows in order.
func (s *Store) Rows() []ledger.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Row(nil), s.rows...)
}
