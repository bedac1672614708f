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

const visitColumns = "id, patient_id, visit_date, visit_type, doctor_name, notes, observation, diagnosis, medicines, tests, next_visit_date, created_at"

// VisitFilter narrows a visit listing. Zero values disable a condition;
// From and To are inclusive.
type VisitFilter struct {
	Page
	PatientID int64
	From      core.Date
	To        core.Date
}

func scanVisit(sc rowScanner) (core.Visit, error) {
	var (
		v                                                  core.Visit
		visitDate, nextVisit                               dbDate
		doctor, notes, observation, diagnosis, meds, tests sql.NullString
		created                                            dbTime
	)
	err := sc.Scan(&v.ID, &v.PatientID, &visitDate, &v.VisitType,
		&doctor, &notes, &observation, &diagnosis, &meds, &tests, &nextVisit, &created)
	if err != nil {
		return core.Visit{}, err
	}
	v.VisitDate = visitDate.Date
	v.NextVisitDate = nextVisit.ptr()
	v.DoctorName = stringPtr(doctor)
	v.Notes = stringPtr(notes)
	v.Observation = stringPtr(observation)
	v.Diagnosis = stringPtr(diagnosis)
	v.Medicines = stringPtr(meds)
	v.Tests = stringPtr(tests)
	v.CreatedAt = created.Time
	return v, nil
}

func (s *Store) GetVisit(ctx context.Context, id int64) (v *core.Visit, err error) {
	defer s.observe("visits.get", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+visitColumns+" FROM patient_visits WHERE id = ?"), id)
	got, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visit %d: %w", id, err)
	}
	return &got, nil
}

// ListVisits returns visits newest first.
func (s *Store) ListVisits(ctx context.Context, f VisitFilter) (out []core.Visit, err error) {
	defer s.observe("visits.list", time.Now(), &err)

	var (
		conds []string
		args  []any
	)
	if f.PatientID != 0 {
		conds = append(conds, "patient_id = ?")
		args = append(args, f.PatientID)
	}
	if !f.From.IsEmpty() {
		conds = append(conds, "visit_date >= ?")
		args = append(args, dateArg(f.From))
	}
	if !f.To.IsEmpty() {
		conds = append(conds, "visit_date <= ?")
		args = append(args, dateArg(f.To))
	}

	query := "SELECT " + visitColumns + " FROM patient_visits"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY visit_date DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Skip)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	out = make([]core.Visit, 0)
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return out, nil
}

func visitArgs(in core.VisitInput) []any {
	return []any{
		in.PatientID, dateArg(*in.VisitDate), string(in.VisitType),
		nullString(in.DoctorName), nullString(in.Notes), nullString(in.Observation),
		nullString(in.Diagnosis), nullString(in.Medicines), nullString(in.Tests),
		nullDateArg(in.NextVisitDate),
	}
}

// CreateVisit inserts the visit if its patient exists.
func (s *Store) CreateVisit(ctx context.Context, in core.VisitInput, createdAt time.Time) (v *core.Visit, err error) {
	defer s.observe("visits.create", time.Now(), &err)

	var created core.Visit
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requirePatient(ctx, tx, in.PatientID); err != nil {
			return err
		}
		args := append(visitArgs(in), timeArg(createdAt))
		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO patient_visits (patient_id, visit_date, visit_type, doctor_name, notes,
				observation, diagnosis, medicines, tests, next_visit_date, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING `+visitColumns), args...)
		got, err := scanVisit(row)
		if err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Visit created",
		log.FieldEntity, core.EntityVisit, log.FieldID, created.ID, log.FieldPatientID, created.PatientID)
	return &created, nil
}

// UpdateVisit replaces every mutable field; created_at is kept.
func (s *Store) UpdateVisit(ctx context.Context, id int64, in core.VisitInput) (v *core.Visit, err error) {
	defer s.observe("visits.update", time.Now(), &err)

	var updated *core.Visit
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.rowExists(ctx, tx, tableVisits, id)
		if err != nil || !ok {
			return err
		}
		if err := s.requirePatient(ctx, tx, in.PatientID); err != nil {
			return err
		}
		args := append(visitArgs(in), id)
		row := tx.QueryRowContext(ctx, s.rebind(`
			UPDATE patient_visits
			SET patient_id = ?, visit_date = ?, visit_type = ?, doctor_name = ?, notes = ?,
				observation = ?, diagnosis = ?, medicines = ?, tests = ?, next_visit_date = ?
			WHERE id = ?
			RETURNING `+visitColumns), args...)
		got, err := scanVisit(row)
		if err != nil {
			return fmt.Errorf("update visit %d: %w", id, err)
		}
		updated = &got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		s.logger.InfoContext(ctx, "Visit updated", log.FieldEntity, core.EntityVisit, log.FieldID, id)
	}
	return updated, nil
}

func (s *Store) DeleteVisit(ctx context.Context, id int64) (v *core.Visit, err error) {
	defer s.observe("visits.delete", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind("DELETE FROM patient_visits WHERE id = ? RETURNING "+visitColumns), id)
	deleted, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete visit %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Visit deleted", log.FieldEntity, core.EntityVisit, log.FieldID, id)
	return &deleted, nil
}
