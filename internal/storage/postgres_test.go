package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The postgres dialect is exercised through sqlmock; the integration build
// tag runs the same store against a real server.

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, DialectPostgres, Options{Logger: log.Discard()}), mock
}

var patientCols = []string{"id", "name", "age", "gender", "mobile", "address", "referral", "history", "created_at"}

func TestPostgres_GetPatientUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM patients WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(int64(7), "Devi", int64(44), "F", "5550101", nil, "Dr. Menon", nil, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("FROM patients WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(patientCols))

	p, err := s.GetPatient(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Devi", p.Name)
	assert.Equal(t, 44, p.Age)
	assert.Nil(t, p.Address)
	require.NotNil(t, p.Referral)
	assert.Equal(t, "Dr. Menon", *p.Referral)

	missing, err := s.GetPatient(context.Background(), 8)
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListPatientsSearch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE name ILIKE $1 ORDER BY id LIMIT $2 OFFSET $3")).
		WithArgs("%Ann%", 10, 20).
		WillReturnRows(sqlmock.NewRows(patientCols))

	out, err := s.ListPatients(context.Background(), PatientFilter{Page: Page{Skip: 20, Limit: 10}, Search: " Ann "})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeletePatientConflictRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM patients WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(int64(3), "Sam", int64(9), "M", "5550102", nil, nil, nil, testNow))
	mock.ExpectQuery(regexp.QuoteMeta("FROM patient_visits WHERE patient_id = $3")).
		WithArgs(int64(3), int64(3), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"a", "p", "v"}).AddRow(int64(0), int64(1), int64(4)))
	mock.ExpectRollback()

	deleted, err := s.DeletePatient(context.Background(), 3)
	assert.Nil(t, deleted)

	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(3), conflict.PatientID)
	assert.Equal(t, core.Dependents{Appointments: 0, Payments: 1, Visits: 4}, conflict.Dependents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreatePaymentMissingPatient(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM patients WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	_, err := s.CreatePayment(context.Background(), core.PaymentInput{
		PatientID: 9, Amount: &core.Money{Cents: 100}, PaymentMode: core.ModeCash,
	}, time.Now())
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PaymentModeTotalsParsesNumericSums(t *testing.T) {
	s, mock := newMockStore(t)

	// SUM over BIGINT is NUMERIC in postgres and arrives as text.
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY payment_mode")).
		WillReturnRows(sqlmock.NewRows([]string{"payment_mode", "sum", "count"}).
			AddRow("card", []byte("9950"), int64(1)).
			AddRow("cash", []byte("12500"), int64(2)))

	totals, err := s.PaymentModeTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.ModeTotal{
		{Mode: core.ModeCard, Total: core.Money{Cents: 9950}, Count: 1},
		{Mode: core.ModeCash, Total: core.Money{Cents: 12500}, Count: 2},
	}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EarliestVisitFromDateColumn(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(visit_date) FROM patient_visits")).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).
			AddRow(time.Date(2023, 12, 31, 0, 0, 0, 0, time.FixedZone("", 0))))

	d, err := s.EarliestVisitDate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2023-12-31", d.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
