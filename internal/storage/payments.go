package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"
)

const paymentColumns = "id, patient_id, amount_cents, payment_date, payment_mode, notes"

func scanPayment(sc rowScanner) (core.Payment, error) {
	var (
		p     core.Payment
		when  dbTime
		notes sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.PatientID, &p.Amount.Cents, &when, &p.PaymentMode, &notes); err != nil {
		return core.Payment{}, err
	}
	p.PaymentDate = when.Time
	p.Notes = stringPtr(notes)
	return p, nil
}

func collectPayments(rows *sql.Rows) ([]core.Payment, error) {
	defer rows.Close()
	out := make([]core.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPayment(ctx context.Context, id int64) (p *core.Payment, err error) {
	defer s.observe("payments.get", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+paymentColumns+" FROM payments WHERE id = ?"), id)
	got, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}
	return &got, nil
}

func (s *Store) ListPayments(ctx context.Context, page Page) (out []core.Payment, err error) {
	defer s.observe("payments.list", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+paymentColumns+" FROM payments ORDER BY id LIMIT ? OFFSET ?"),
		page.Limit, page.Skip)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out, err = collectPayments(rows)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

// ListPaymentsByPatient returns every payment of one patient in id order.
func (s *Store) ListPaymentsByPatient(ctx context.Context, patientID int64) (out []core.Payment, err error) {
	defer s.observe("payments.by_patient", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+paymentColumns+" FROM payments WHERE patient_id = ? ORDER BY id"), patientID)
	if err != nil {
		return nil, fmt.Errorf("list payments of patient %d: %w", patientID, err)
	}
	out, err = collectPayments(rows)
	if err != nil {
		return nil, fmt.Errorf("list payments of patient %d: %w", patientID, err)
	}
	return out, nil
}

// CreatePayment inserts a payment dated paidAt if its patient exists.
func (s *Store) CreatePayment(ctx context.Context, in core.PaymentInput, paidAt time.Time) (p *core.Payment, err error) {
	defer s.observe("payments.create", time.Now(), &err)

	var created core.Payment
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requirePatient(ctx, tx, in.PatientID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO payments (patient_id, amount_cents, payment_date, payment_mode, notes)
			VALUES (?, ?, ?, ?, ?)
			RETURNING `+paymentColumns),
			in.PatientID, in.Amount.Cents, timeArg(paidAt), string(in.PaymentMode), nullString(in.Notes),
		)
		got, err := scanPayment(row)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Payment created",
		log.FieldEntity, core.EntityPayment, log.FieldID, created.ID,
		log.FieldPatientID, created.PatientID, log.FieldAmountCents, created.Amount.Cents)
	return &created, nil
}

// UpdatePayment replaces every field. payment_date is mandatory on update.
func (s *Store) UpdatePayment(ctx context.Context, id int64, in core.PaymentInput) (p *core.Payment, err error) {
	defer s.observe("payments.update", time.Now(), &err)

	var updated *core.Payment
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.rowExists(ctx, tx, tablePayments, id)
		if err != nil || !ok {
			return err
		}
		if err := s.requirePatient(ctx, tx, in.PatientID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, s.rebind(`
			UPDATE payments
			SET patient_id = ?, amount_cents = ?, payment_date = ?, payment_mode = ?, notes = ?
			WHERE id = ?
			RETURNING `+paymentColumns),
			in.PatientID, in.Amount.Cents, timeArg(in.PaymentDate.Time), string(in.PaymentMode), nullString(in.Notes), id,
		)
		got, err := scanPayment(row)
		if err != nil {
			return fmt.Errorf("update payment %d: %w", id, err)
		}
		updated = &got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		s.logger.InfoContext(ctx, "Payment updated", log.FieldEntity, core.EntityPayment, log.FieldID, id)
	}
	return updated, nil
}

func (s *Store) DeletePayment(ctx context.Context, id int64) (p *core.Payment, err error) {
	defer s.observe("payments.delete", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind("DELETE FROM payments WHERE id = ? RETURNING "+paymentColumns), id)
	deleted, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete payment %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Payment deleted", log.FieldEntity, core.EntityPayment, log.FieldID, id)
	return &deleted, nil
}
