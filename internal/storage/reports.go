package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic/internal/core"
)

// Aggregate queries backing the reporting service. Timestamp bounds are
// half-open [from, to); date bounds are inclusive.

func (s *Store) CountPatients(ctx context.Context) (n int64, err error) {
	defer s.observe("reports.count_patients", time.Now(), &err)
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

// CountPatientsCreatedSince counts patients with created_at >= since.
func (s *Store) CountPatientsCreatedSince(ctx context.Context, since time.Time) (n int64, err error) {
	defer s.observe("reports.count_new_patients", time.Now(), &err)
	err = s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM patients WHERE created_at >= ?"), timeArg(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patients since %s: %w", since.Format(time.RFC3339), err)
	}
	return n, nil
}

// CountVisits counts visits, optionally of one type and within an inclusive
// date range. Either range bound may be zero.
func (s *Store) CountVisits(ctx context.Context, visitType core.VisitType, r core.DateRange) (n int64, err error) {
	defer s.observe("reports.count_visits", time.Now(), &err)

	var (
		conds []string
		args  []any
	)
	if visitType != "" {
		conds = append(conds, "visit_type = ?")
		args = append(args, string(visitType))
	}
	if !r.Start.IsEmpty() {
		conds = append(conds, "visit_date >= ?")
		args = append(args, dateArg(r.Start))
	}
	if !r.End.IsEmpty() {
		conds = append(conds, "visit_date <= ?")
		args = append(args, dateArg(r.End))
	}
	query := "SELECT COUNT(*) FROM patient_visits"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if err = s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

// CountAppointmentsBetween counts appointments in [from, to).
func (s *Store) CountAppointmentsBetween(ctx context.Context, from, to time.Time) (n int64, err error) {
	defer s.observe("reports.count_appointments", time.Now(), &err)
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM appointments WHERE appointment_date >= ? AND appointment_date < ?"),
		timeArg(from), timeArg(to)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

// CountUpcomingAppointments counts scheduled appointments at or after now.
func (s *Store) CountUpcomingAppointments(ctx context.Context, now time.Time) (n int64, err error) {
	defer s.observe("reports.count_upcoming", time.Now(), &err)
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM appointments WHERE status = ? AND appointment_date >= ?"),
		string(core.StatusScheduled), timeArg(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count upcoming appointments: %w", err)
	}
	return n, nil
}

// AppointmentTimes returns the timestamps of appointments in [from, to).
// Bucketing by day happens in the caller so both dialects agree.
func (s *Store) AppointmentTimes(ctx context.Context, from, to time.Time) (out []time.Time, err error) {
	defer s.observe("reports.appointment_times", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT appointment_date FROM appointments WHERE appointment_date >= ? AND appointment_date < ? ORDER BY appointment_date"),
		timeArg(from), timeArg(to))
	if err != nil {
		return nil, fmt.Errorf("appointment times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t dbTime
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan appointment time: %w", err)
		}
		out = append(out, t.Time)
	}
	return out, rows.Err()
}

// SumPaymentsBetween totals payments dated in [from, to).
func (s *Store) SumPaymentsBetween(ctx context.Context, from, to time.Time) (m core.Money, err error) {
	defer s.observe("reports.sum_payments", time.Now(), &err)
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE payment_date >= ? AND payment_date < ?"),
		timeArg(from), timeArg(to)).Scan(&m.Cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum payments: %w", err)
	}
	return m, nil
}

// PaymentModeTotals groups all payments by mode, ordered by mode name.
func (s *Store) PaymentModeTotals(ctx context.Context) (out []core.ModeTotal, err error) {
	defer s.observe("reports.mode_totals", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_mode, COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM payments
		GROUP BY payment_mode
		ORDER BY payment_mode`)
	if err != nil {
		return nil, fmt.Errorf("payment mode totals: %w", err)
	}
	defer rows.Close()

	out = make([]core.ModeTotal, 0)
	for rows.Next() {
		var mt core.ModeTotal
		if err := rows.Scan(&mt.Mode, &mt.Total.Cents, &mt.Count); err != nil {
			return nil, fmt.Errorf("scan mode total: %w", err)
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// VisitCountsSince returns per-day visit counts for visit_date >= since,
// ascending by date. Days without visits are omitted.
func (s *Store) VisitCountsSince(ctx context.Context, since core.Date) (out []core.DayCount, err error) {
	defer s.observe("reports.visit_counts", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT visit_date, COUNT(*)
		FROM patient_visits
		WHERE visit_date >= ?
		GROUP BY visit_date
		ORDER BY visit_date`), dateArg(since))
	if err != nil {
		return nil, fmt.Errorf("visit counts: %w", err)
	}
	defer rows.Close()

	out = make([]core.DayCount, 0)
	for rows.Next() {
		var (
			d  dbDate
			dc core.DayCount
		)
		if err := rows.Scan(&d, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan visit count: %w", err)
		}
		dc.Date = d.Date
		out = append(out, dc)
	}
	return out, rows.Err()
}

// EarliestVisitDate returns nil when there are no visits.
func (s *Store) EarliestVisitDate(ctx context.Context) (d *core.Date, err error) {
	defer s.observe("reports.earliest_visit", time.Now(), &err)

	var earliest dbDate
	if err = s.db.QueryRowContext(ctx, "SELECT MIN(visit_date) FROM patient_visits").Scan(&earliest); err != nil {
		return nil, fmt.Errorf("earliest visit: %w", err)
	}
	return earliest.ptr(), nil
}
