package core

// DateRange is an optional inclusive range of calendar days. Zero bounds are unset.
type DateRange struct {
	Start Date
	End   Date
}

// Complete reports whether both bounds are set.
func (r DateRange) Complete() bool {
	return !r.Start.IsEmpty() && !r.End.IsEmpty()
}

// DateSpan echoes the effective range a report was computed over.
type DateSpan struct {
	StartDate Date `json:"start_date"`
	EndDate   Date `json:"end_date"`
}

// DayCount is the number of records falling on one calendar day.
type DayCount struct {
	Date  Date  `json:"date"`
	Count int64 `json:"count"`
}

type PatientStats struct {
	TotalPatients     int64    `json:"total_patients"`
	AvgPatientsPerDay float64  `json:"avg_patients_per_day"`
	NewPatients       int64    `json:"new_patients"`
	FollowupPatients  int64    `json:"followup_patients"`
	DateRange         DateSpan `json:"date_range"`
}

type AppointmentStats struct {
	DailyAppointments    int64      `json:"daily_appointments"`
	UpcomingAppointments int64      `json:"upcoming_appointments"`
	AppointmentCounts    []DayCount `json:"appointment_counts"`
}

// ModeTotal aggregates payments sharing a payment mode.
type ModeTotal struct {
	Mode  PaymentMode `json:"mode"`
	Total Money       `json:"total"`
	Count int64       `json:"count"`
}

type FinanceStats struct {
	DailyRevenue         Money       `json:"daily_revenue"`
	MonthlyRevenue       Money       `json:"monthly_revenue"`
	PaymentModeBreakdown []ModeTotal `json:"payment_mode_breakdown"`
}

type VisitStats struct {
	TotalVisits     int64      `json:"total_visits"`
	NewVisits       int64      `json:"new_visits"`
	FollowupVisits  int64      `json:"followup_visits"`
	AvgVisitsPerDay float64    `json:"avg_visits_per_day"`
	VisitCounts     []DayCount `json:"visit_counts"`
}

type DashboardStats struct {
	PatientStats     PatientStats     `json:"patient_stats"`
	AppointmentStats AppointmentStats `json:"appointment_stats"`
	FinanceStats     FinanceStats     `json:"finance_stats"`
	VisitStats       VisitStats       `json:"visit_stats"`
}
