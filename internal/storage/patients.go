package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"
)

const patientColumns = "id, name, age, gender, mobile, address, referral, history, created_at"

// PatientFilter narrows a patient listing.
type PatientFilter struct {
	Page
	// Search is a case-insensitive substring of the patient name.
	Search string
}

func scanPatient(sc rowScanner) (core.Patient, error) {
	var (
		p                          core.Patient
		address, referral, history sql.NullString
		created                    dbTime
	)
	if err := sc.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Mobile, &address, &referral, &history, &created); err != nil {
		return core.Patient{}, err
	}
	p.Address = stringPtr(address)
	p.Referral = stringPtr(referral)
	p.History = stringPtr(history)
	p.CreatedAt = created.Time
	return p, nil
}

// GetPatient returns nil, nil when no patient has the given id.
func (s *Store) GetPatient(ctx context.Context, id int64) (p *core.Patient, err error) {
	defer s.observe("patients.get", time.Now(), &err)
	return s.getPatient(ctx, s.db, id)
}

func (s *Store) getPatient(ctx context.Context, q querier, id int64) (*core.Patient, error) {
	row := q.QueryRowContext(ctx, s.rebind("SELECT "+patientColumns+" FROM patients WHERE id = ?"), id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListPatients(ctx context.Context, f PatientFilter) (out []core.Patient, err error) {
	defer s.observe("patients.list", time.Now(), &err)

	query := "SELECT " + patientColumns + " FROM patients"
	var args []any
	if search := strings.TrimSpace(f.Search); search != "" {
		// Both sides fold with the same function; sqlite LOWER is ASCII only.
		if s.dialect == DialectPostgres {
			query += " WHERE name ILIKE ?"
		} else {
			query += " WHERE LOWER(name) LIKE LOWER(?)"
		}
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Skip)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	out = make([]core.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

// AllPatients loads every patient in id order. The rows are fully read
// before returning so the connection is back in the pool.
func (s *Store) AllPatients(ctx context.Context) (out []core.Patient, err error) {
	defer s.observe("patients.all", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, "SELECT "+patientColumns+" FROM patients ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	out = make([]core.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	return out, nil
}

// CreatePatient persists a validated input. createdAt is normalized to UTC seconds.
func (s *Store) CreatePatient(ctx context.Context, in core.PatientInput, createdAt time.Time) (p *core.Patient, err error) {
	defer s.observe("patients.create", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO patients (name, age, gender, mobile, address, referral, history, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+patientColumns),
		in.Name, *in.Age, in.Gender, in.Mobile,
		nullString(in.Address), nullString(in.Referral), nullString(in.History),
		timeArg(createdAt),
	)
	created, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	s.logger.InfoContext(ctx, "Patient created", log.FieldEntity, core.EntityPatient, log.FieldID, created.ID)
	return &created, nil
}

// UpdatePatient replaces every mutable field. Returns nil, nil when absent.
func (s *Store) UpdatePatient(ctx context.Context, id int64, in core.PatientInput) (p *core.Patient, err error) {
	defer s.observe("patients.update", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind(`
		UPDATE patients
		SET name = ?, age = ?, gender = ?, mobile = ?, address = ?, referral = ?, history = ?
		WHERE id = ?
		RETURNING `+patientColumns),
		in.Name, *in.Age, in.Gender, in.Mobile,
		nullString(in.Address), nullString(in.Referral), nullString(in.History),
		id,
	)
	updated, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update patient %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Patient updated", log.FieldEntity, core.EntityPatient, log.FieldID, id)
	return &updated, nil
}

// DeletePatient removes a patient with no dependent records. A patient that
// is still referenced yields a *core.ConflictError carrying the counts.
func (s *Store) DeletePatient(ctx context.Context, id int64) (p *core.Patient, err error) {
	defer s.observe("patients.delete", time.Now(), &err)

	var deleted *core.Patient
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.getPatient(ctx, tx, id)
		if err != nil || existing == nil {
			return err
		}
		deps, err := s.countDependents(ctx, tx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return &core.ConflictError{PatientID: id, Dependents: deps}
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM patients WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete patient %d: %w", id, err)
		}
		deleted = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted != nil {
		s.logger.InfoContext(ctx, "Patient deleted", log.FieldEntity, core.EntityPatient, log.FieldID, id)
	}
	return deleted, nil
}

// CountDependents reports how many records reference the patient.
func (s *Store) CountDependents(ctx context.Context, patientID int64) (d core.Dependents, err error) {
	defer s.observe("patients.dependents", time.Now(), &err)
	return s.countDependents(ctx, s.db, patientID)
}

func (s *Store) countDependents(ctx context.Context, q querier, patientID int64) (core.Dependents, error) {
	var d core.Dependents
	err := q.QueryRowContext(ctx, s.rebind(`
		SELECT
			(SELECT COUNT(*) FROM appointments WHERE patient_id = ?),
			(SELECT COUNT(*) FROM payments WHERE patient_id = ?),
			(SELECT COUNT(*) FROM patient_visits WHERE patient_id = ?)`),
		patientID, patientID, patientID,
	).Scan(&d.Appointments, &d.Payments, &d.Visits)
	if err != nil {
		return core.Dependents{}, fmt.Errorf("count dependents of patient %d: %w", patientID, err)
	}
	return d, nil
}
