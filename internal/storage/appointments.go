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

const appointmentColumns = "id, patient_id, doctor_name, appointment_date, status"

func scanAppointment(sc rowScanner) (core.Appointment, error) {
	var (
		a    core.Appointment
		when dbTime
	)
	if err := sc.Scan(&a.ID, &a.PatientID, &a.DoctorName, &when, &a.Status); err != nil {
		return core.Appointment{}, err
	}
	a.AppointmentDate = when.Time
	return a, nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (a *core.Appointment, err error) {
	defer s.observe("appointments.get", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+appointmentColumns+" FROM appointments WHERE id = ?"), id)
	got, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return &got, nil
}

func (s *Store) ListAppointments(ctx context.Context, page Page) (out []core.Appointment, err error) {
	defer s.observe("appointments.list", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+appointmentColumns+" FROM appointments ORDER BY id LIMIT ? OFFSET ?"),
		page.Limit, page.Skip)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	out = make([]core.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// CreateAppointment inserts the appointment if its patient exists.
func (s *Store) CreateAppointment(ctx context.Context, in core.AppointmentInput) (a *core.Appointment, err error) {
	defer s.observe("appointments.create", time.Now(), &err)

	var created core.Appointment
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requirePatient(ctx, tx, in.PatientID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO appointments (patient_id, doctor_name, appointment_date, status)
			VALUES (?, ?, ?, ?)
			RETURNING `+appointmentColumns),
			in.PatientID, in.DoctorName, timeArg(in.AppointmentDate.Time), string(in.Status),
		)
		got, err := scanAppointment(row)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Appointment created",
		log.FieldEntity, core.EntityAppointment, log.FieldID, created.ID, log.FieldPatientID, created.PatientID)
	return &created, nil
}

// UpdateAppointment returns nil, nil when the appointment is absent and a
// NotFoundError when it exists but the new patient does not.
func (s *Store) UpdateAppointment(ctx context.Context, id int64, in core.AppointmentInput) (a *core.Appointment, err error) {
	defer s.observe("appointments.update", time.Now(), &err)

	var updated *core.Appointment
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.rowExists(ctx, tx, tableAppointments, id)
		if err != nil || !ok {
			return err
		}
		if err := s.requirePatient(ctx, tx, in.PatientID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, s.rebind(`
			UPDATE appointments
			SET patient_id = ?, doctor_name = ?, appointment_date = ?, status = ?
			WHERE id = ?
			RETURNING `+appointmentColumns),
			in.PatientID, in.DoctorName, timeArg(in.AppointmentDate.Time), string(in.Status), id,
		)
		got, err := scanAppointment(row)
		if err != nil {
			return fmt.Errorf("update appointment %d: %w", id, err)
		}
		updated = &got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		s.logger.InfoContext(ctx, "Appointment updated", log.FieldEntity, core.EntityAppointment, log.FieldID, id)
	}
	return updated, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id int64) (a *core.Appointment, err error) {
	defer s.observe("appointments.delete", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind("DELETE FROM appointments WHERE id = ? RETURNING "+appointmentColumns), id)
	deleted, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete appointment %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Appointment deleted", log.FieldEntity, core.EntityAppointment, log.FieldID, id)
	return &deleted, nil
}
