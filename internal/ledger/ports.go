// Package ledger defines the outbound port used to mirror payments into an
// append-only ledger, such as a spreadsheet kept by the clinic's accountant.
package ledger

import (
	"context"
	"time"

	"clinic/internal/core"
)

// Columns is the header row of a ledger sheet. Row.Values follows the same order.
var Columns = []string{"event", "payment_id", "patient_id", "payment_date", "amount", "mode", "notes"}

// Row is one ledger line describing a payment transition.
type Row struct {
	Event       string
	PaymentID   int64
	PatientID   int64
	PaymentDate time.Time
	Amount      core.Money
	Mode        core.PaymentMode
	Notes       string
}

// Values renders the row as sheet cells.
func (r Row) Values() []any {
	return []any{
		r.Event,
		r.PaymentID,
		r.PatientID,
		r.PaymentDate.UTC().Format("2006-01-02 15:04:05"),
		r.Amount.String(),
		string(r.Mode),
		r.Notes,
	}
}

// Writer appends rows to a ledger.
type Writer interface {
	AppendPaymentRow(ctx context.Context, row Row) (rowRef string, err error)
}
