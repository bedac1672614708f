package services

import (
	"context"
	"math"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"
	"clinic/internal/storage"

	"golang.org/x/sync/errgroup"
)

const (
	newPatientWindowDays = 30
	visitWindowDays      = 30
	appointmentDays      = 14
)

// ReportService computes dashboard statistics from scratch on every call.
type ReportService struct {
	store  *storage.Store
	clock  func() time.Time
	logger *log.Logger
}

func NewReportService(store *storage.Store, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReportService{
		store:  store,
		clock:  time.Now,
		logger: logger.WithComponent(log.ComponentReports),
	}
}

// WithClock replaces the time source. Used by tests.
func (s *ReportService) WithClock(clock func() time.Time) *ReportService {
	s.clock = clock
	return s
}

func (s *ReportService) now() time.Time {
	return s.clock().UTC()
}

// ResolveRange applies the current-month default when either bound is
// missing and rejects inverted ranges.
func ResolveRange(r core.DateRange, now time.Time) (core.DateRange, error) {
	if !r.Complete() {
		r.Start, r.End = core.MonthBounds(now)
	}
	if r.Start.After(r.End.Time) {
		return core.DateRange{}, core.Invalidf("start_date", "%s is after end_date %s", r.Start, r.End)
	}
	return r, nil
}

func (s *ReportService) PatientStats(ctx context.Context, r core.DateRange) (core.PatientStats, error) {
	now := s.now()
	r, err := ResolveRange(r, now)
	if err != nil {
		return core.PatientStats{}, err
	}

	total, err := s.store.CountPatients(ctx)
	if err != nil {
		return core.PatientStats{}, err
	}
	recent, err := s.store.CountPatientsCreatedSince(ctx, now.AddDate(0, 0, -newPatientWindowDays))
	if err != nil {
		return core.PatientStats{}, err
	}
	newVisits, err := s.store.CountVisits(ctx, core.VisitNew, r)
	if err != nil {
		return core.PatientStats{}, err
	}
	followups, err := s.store.CountVisits(ctx, core.VisitFollowUp, r)
	if err != nil {
		return core.PatientStats{}, err
	}

	return core.PatientStats{
		TotalPatients:     total,
		AvgPatientsPerDay: round(float64(recent)/newPatientWindowDays, 2),
		NewPatients:       newVisits,
		FollowupPatients:  followups,
		DateRange:         core.DateSpan{StartDate: r.Start, EndDate: r.End},
	}, nil
}

func (s *ReportService) AppointmentStats(ctx context.Context) (core.AppointmentStats, error) {
	now := s.now()
	today := core.DateOf(now)
	start := today.Time

	daily, err := s.store.CountAppointmentsBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return core.AppointmentStats{}, err
	}
	upcoming, err := s.store.CountUpcomingAppointments(ctx, now)
	if err != nil {
		return core.AppointmentStats{}, err
	}
	times, err := s.store.AppointmentTimes(ctx, start, start.AddDate(0, 0, appointmentDays))
	if err != nil {
		return core.AppointmentStats{}, err
	}

	counts := make([]core.DayCount, appointmentDays)
	for i := range counts {
		counts[i].Date = today.AddDays(i)
	}
	for _, t := range times {
		if i := today.DaysUntil(core.DateOf(t)); i >= 0 && i < appointmentDays {
			counts[i].Count++
		}
	}

	return core.AppointmentStats{
		DailyAppointments:    daily,
		UpcomingAppointments: upcoming,
		AppointmentCounts:    counts,
	}, nil
}

func (s *ReportService) FinanceStats(ctx context.Context) (core.FinanceStats, error) {
	now := s.now()
	day := core.DateOf(now).Time
	first, _ := core.MonthBounds(now)

	daily, err := s.store.SumPaymentsBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return core.FinanceStats{}, err
	}
	monthly, err := s.store.SumPaymentsBetween(ctx, first.Time, first.Time.AddDate(0, 1, 0))
	if err != nil {
		return core.FinanceStats{}, err
	}
	breakdown, err := s.store.PaymentModeTotals(ctx)
	if err != nil {
		return core.FinanceStats{}, err
	}

	return core.FinanceStats{
		DailyRevenue:         daily,
		MonthlyRevenue:       monthly,
		PaymentModeBreakdown: breakdown,
	}, nil
}

func (s *ReportService) VisitStats(ctx context.Context) (core.VisitStats, error) {
	today := core.DateOf(s.now())

	total, err := s.store.CountVisits(ctx, "", core.DateRange{})
	if err != nil {
		return core.VisitStats{}, err
	}
	newVisits, err := s.store.CountVisits(ctx, core.VisitNew, core.DateRange{})
	if err != nil {
		return core.VisitStats{}, err
	}
	followups, err := s.store.CountVisits(ctx, core.VisitFollowUp, core.DateRange{})
	if err != nil {
		return core.VisitStats{}, err
	}
	counts, err := s.store.VisitCountsSince(ctx, today.AddDays(-visitWindowDays))
	if err != nil {
		return core.VisitStats{}, err
	}
	earliest, err := s.store.EarliestVisitDate(ctx)
	if err != nil {
		return core.VisitStats{}, err
	}

	var avg float64
	if total > 0 && earliest != nil {
		days := earliest.DaysUntil(today) + 1
		if days < 1 {
			days = 1
		}
		avg = round(float64(total)/float64(days), 1)
	}

	return core.VisitStats{
		TotalVisits:     total,
		NewVisits:       newVisits,
		FollowupVisits:  followups,
		AvgVisitsPerDay: avg,
		VisitCounts:     counts,
	}, nil
}

// Dashboard computes the four reports concurrently.
func (s *ReportService) Dashboard(ctx context.Context, r core.DateRange) (core.DashboardStats, error) {
	var out core.DashboardStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.PatientStats, err = s.PatientStats(gctx, r)
		return err
	})
	g.Go(func() (err error) {
		out.AppointmentStats, err = s.AppointmentStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.FinanceStats, err = s.FinanceStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.VisitStats, err = s.VisitStats(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "Dashboard computation failed", log.FieldError, err)
		return core.DashboardStats{}, err
	}
	return out, nil
}

// round rounds half away from zero to the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
