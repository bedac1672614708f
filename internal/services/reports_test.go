package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServices(t *testing.T, now time.Time) (*RecordService, *ReportService) {
	t.Helper()
	store := newTestStore(t)
	records := NewRecordService(store, nil, log.Discard())
	records.now = func() time.Time { return now }
	reports := NewReportService(store, log.Discard()).WithClock(func() time.Time { return now })
	return records, reports
}

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name      string
		in        core.DateRange
		now       time.Time
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"defaults to current month", core.DateRange{}, fixedNow, "2024-01-01", "2024-01-31", false},
		{"december rolls into january", core.DateRange{}, time.Date(2024, 12, 15, 8, 0, 0, 0, time.UTC), "2024-12-01", "2024-12-31", false},
		{"leap february", core.DateRange{}, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), "2024-02-01", "2024-02-29", false},
		{"half range falls back", core.DateRange{Start: core.NewDate(2023, 5, 1)}, fixedNow, "2024-01-01", "2024-01-31", false},
		{"explicit", core.DateRange{Start: core.NewDate(2023, 5, 1), End: core.NewDate(2023, 5, 1)}, fixedNow, "2023-05-01", "2023-05-01", false},
		{"inverted", core.DateRange{Start: core.NewDate(2023, 5, 2), End: core.NewDate(2023, 5, 1)}, fixedNow, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRange(tt.in, tt.now)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, got.Start.String())
			assert.Equal(t, tt.wantEnd, got.End.String())
		})
	}
}

func TestReportService_PatientStats(t *testing.T) {
	records, reports := newServices(t, fixedNow)
	ctx := context.Background()

	a := mustPatient(t, records, "A")
	mustPatient(t, records, "B")
	mustPatient(t, records, "C")

	for _, v := range []core.VisitInput{
		{PatientID: a.ID, VisitDate: date(2024, 1, 3), VisitType: core.VisitNew},
		{PatientID: a.ID, VisitDate: date(2024, 1, 10), VisitType: core.VisitFollowUp},
		{PatientID: a.ID, VisitDate: date(2024, 1, 17), VisitType: core.VisitFollowUp},
		{PatientID: a.ID, VisitDate: date(2023, 12, 28), VisitType: core.VisitNew},
	} {
		_, err := records.CreateVisit(ctx, v)
		require.NoError(t, err)
	}

	stats, err := reports.PatientStats(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPatients)
	assert.Equal(t, 0.1, stats.AvgPatientsPerDay)
	assert.Equal(t, int64(1), stats.NewPatients)
	assert.Equal(t, int64(2), stats.FollowupPatients)
	assert.Equal(t, "2024-01-01", stats.DateRange.StartDate.String())
	assert.Equal(t, "2024-01-31", stats.DateRange.EndDate.String())

	ranged, err := reports.PatientStats(ctx, core.DateRange{Start: core.NewDate(2023, 12, 1), End: core.NewDate(2024, 1, 5)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ranged.NewPatients)
	assert.Zero(t, ranged.FollowupPatients)

	_, err = reports.PatientStats(ctx, core.DateRange{Start: core.NewDate(2024, 2, 1), End: core.NewDate(2024, 1, 1)})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestReportService_AppointmentStats(t *testing.T) {
	records, reports := newServices(t, fixedNow)
	ctx := context.Background()
	p := mustPatient(t, records, "Appt")

	for _, at := range []struct {
		when   time.Time
		status core.AppointmentStatus
	}{
		{fixedNow.Add(-3 * time.Hour), core.StatusCompleted},
		{fixedNow.Add(3 * time.Hour), core.StatusScheduled},
		{fixedNow.AddDate(0, 0, 2), core.StatusScheduled},
		{fixedNow.AddDate(0, 0, 13), core.StatusCancelled},
		{fixedNow.AddDate(0, 0, 14), core.StatusScheduled},
		{fixedNow.AddDate(0, 0, -1), core.StatusScheduled},
	} {
		_, err := records.CreateAppointment(ctx, core.AppointmentInput{
			PatientID: p.ID, DoctorName: "Dr. Bose", AppointmentDate: timestamp(at.when), Status: at.status,
		})
		require.NoError(t, err)
	}

	stats, err := reports.AppointmentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.DailyAppointments)
	assert.Equal(t, int64(3), stats.UpcomingAppointments)

	require.Len(t, stats.AppointmentCounts, 14)
	assert.Equal(t, "2024-01-20", stats.AppointmentCounts[0].Date.String())
	assert.Equal(t, "2024-02-02", stats.AppointmentCounts[13].Date.String())
	assert.Equal(t, int64(2), stats.AppointmentCounts[0].Count)
	assert.Equal(t, int64(1), stats.AppointmentCounts[2].Count)
	assert.Equal(t, int64(1), stats.AppointmentCounts[13].Count)
	assert.Zero(t, stats.AppointmentCounts[1].Count)
}

func TestReportService_FinanceStats(t *testing.T) {
	records, reports := newServices(t, fixedNow)
	ctx := context.Background()
	p := mustPatient(t, records, "Fin")

	for _, pay := range []struct {
		mode  core.PaymentMode
		cents int64
		at    time.Time
	}{
		{core.ModeCash, 10000, fixedNow},
		{core.ModeUPI, 5000, fixedNow.AddDate(0, 0, -5)},
		{core.ModeCash, 2500, fixedNow.AddDate(0, 0, -19)},
		{core.ModeCard, 9900, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)},
	} {
		_, err := records.CreatePayment(ctx, core.PaymentInput{
			PatientID: p.ID, Amount: money(pay.cents), PaymentMode: pay.mode, PaymentDate: timestamp(pay.at),
		})
		require.NoError(t, err)
	}

	stats, err := reports.FinanceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), stats.DailyRevenue.Cents)
	assert.Equal(t, int64(17500), stats.MonthlyRevenue.Cents)
	assert.Equal(t, []core.ModeTotal{
		{Mode: core.ModeCard, Total: core.Money{Cents: 9900}, Count: 1},
		{Mode: core.ModeCash, Total: core.Money{Cents: 12500}, Count: 2},
		{Mode: core.ModeUPI, Total: core.Money{Cents: 5000}, Count: 1},
	}, stats.PaymentModeBreakdown)

	body, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"monthly_revenue":175.00`)
	assert.Contains(t, string(body), `{"mode":"cash","total":125.00,"count":2}`)
}

func TestReportService_VisitStats(t *testing.T) {
	records, reports := newServices(t, fixedNow)
	ctx := context.Background()

	empty, err := reports.VisitStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalVisits)
	assert.Equal(t, 0.0, empty.AvgVisitsPerDay)
	assert.Empty(t, empty.VisitCounts)

	p := mustPatient(t, records, "Vis")
	for _, v := range []core.VisitInput{
		{PatientID: p.ID, VisitDate: date(2024, 1, 11), VisitType: core.VisitNew},
		{PatientID: p.ID, VisitDate: date(2024, 1, 15), VisitType: core.VisitFollowUp},
		{PatientID: p.ID, VisitDate: date(2024, 1, 15), VisitType: core.VisitFollowUp},
		{PatientID: p.ID, VisitDate: date(2024, 1, 20), VisitType: core.VisitNew},
	} {
		_, err := records.CreateVisit(ctx, v)
		require.NoError(t, err)
	}

	stats, err := reports.VisitStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalVisits)
	assert.Equal(t, int64(2), stats.NewVisits)
	assert.Equal(t, int64(2), stats.FollowupVisits)
	assert.Equal(t, 0.4, stats.AvgVisitsPerDay, "4 visits over the 10 days since Jan 11")
	assert.Equal(t, []core.DayCount{
		{Date: core.NewDate(2024, 1, 11), Count: 1},
		{Date: core.NewDate(2024, 1, 15), Count: 2},
		{Date: core.NewDate(2024, 1, 20), Count: 1},
	}, stats.VisitCounts)
}

func TestReportService_VisitWindowExcludesOldVisits(t *testing.T) {
	records, reports := newServices(t, fixedNow)
	ctx := context.Background()
	p := mustPatient(t, records, "Old")

	_, err := records.CreateVisit(ctx, core.VisitInput{PatientID: p.ID, VisitDate: date(2023, 12, 20), VisitType: core.VisitNew})
	require.NoError(t, err)
	_, err = records.CreateVisit(ctx, core.VisitInput{PatientID: p.ID, VisitDate: date(2023, 12, 21), VisitType: core.VisitNew})
	require.NoError(t, err)

	stats, err := reports.VisitStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.DayCount{{Date: core.NewDate(2023, 12, 21), Count: 1}}, stats.VisitCounts)
	assert.Equal(t, 0.1, stats.AvgVisitsPerDay, "2 visits over 32 days rounds to 0.1")
}

func TestReportService_Dashboard(t *testing.T) {
	records, reports := newServices(t, time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC))
	ctx := context.Background()
	p := mustPatient(t, records, "Dash")

	_, err := records.CreatePayment(ctx, core.PaymentInput{PatientID: p.ID, Amount: money(10000), PaymentMode: core.ModeCash})
	require.NoError(t, err)

	dash, err := reports.Dashboard(ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "2024-12-01", dash.PatientStats.DateRange.StartDate.String())
	assert.Equal(t, "2024-12-31", dash.PatientStats.DateRange.EndDate.String())
	assert.Equal(t, int64(1), dash.PatientStats.TotalPatients)
	assert.Len(t, dash.AppointmentStats.AppointmentCounts, 14)
	assert.Equal(t, "2025-01-13", dash.AppointmentStats.AppointmentCounts[13].Date.String())
	assert.Equal(t, int64(10000), dash.FinanceStats.MonthlyRevenue.Cents)
	assert.Zero(t, dash.VisitStats.TotalVisits)

	_, err = reports.Dashboard(ctx, core.DateRange{Start: core.NewDate(2024, 12, 2), End: core.NewDate(2024, 12, 1)})
	assert.ErrorIs(t, err, core.ErrValidation)
}
