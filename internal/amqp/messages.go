package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinic/internal/core"
)

// EventType names a payment lifecycle transition.
type EventType string

const (
	EventPaymentRecorded EventType = "payment.recorded"
	EventPaymentUpdated  EventType = "payment.updated"
	EventPaymentDeleted  EventType = "payment.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventPaymentRecorded, EventPaymentUpdated, EventPaymentDeleted:
		return true
	}
	return false
}

// PaymentEvent carries a snapshot of the payment so consumers do not need
// database access. Deleted payments are still described in full.
type PaymentEvent struct {
	Event       EventType        `json:"event"`
	PaymentID   int64            `json:"payment_id"`
	PatientID   int64            `json:"patient_id"`
	AmountCents int64            `json:"amount_cents"`
	PaymentMode core.PaymentMode `json:"payment_mode"`
	PaymentDate time.Time        `json:"payment_date"`
	Notes       string           `json:"notes,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewPaymentEvent snapshots p for the given transition.
func NewPaymentEvent(event EventType, p core.Payment) *PaymentEvent {
	ev := &PaymentEvent{
		Event:       event,
		PaymentID:   p.ID,
		PatientID:   p.PatientID,
		AmountCents: p.Amount.Cents,
		PaymentMode: p.PaymentMode,
		PaymentDate: p.PaymentDate,
		OccurredAt:  time.Now().UTC(),
	}
	if p.Notes != nil {
		ev.Notes = *p.Notes
	}
	return ev
}

// Amount returns the payment amount as money.
func (e *PaymentEvent) Amount() core.Money {
	return core.Money{Cents: e.AmountCents}
}

// ToJSON converts the message to JSON bytes
func (e *PaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PaymentEventFromJSON decodes and sanity checks a message body.
func PaymentEventFromJSON(data []byte) (*PaymentEvent, error) {
	var ev PaymentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !ev.Event.Valid() {
		return nil, fmt.Errorf("unknown event type %q", ev.Event)
	}
	if ev.PaymentID <= 0 {
		return nil, errors.New("payment_id must be positive")
	}
	return &ev, nil
}
