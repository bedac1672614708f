// Package core holds the clinic entities, their validation, money and date
// value types, and the error taxonomy shared by every layer.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

const (
	ModeCash PaymentMode = "cash"
	ModeUPI  PaymentMode = "upi"
	ModeCard PaymentMode = "card"
)

const (
	VisitNew      VisitType = "new"
	VisitFollowUp VisitType = "follow-up"
)

// Entity names used in error messages and logs.
const (
	EntityPatient     = "Patient"
	EntityAppointment = "Appointment"
	EntityPayment     = "Payment"
	EntityVisit       = "Visit"
)

// Column width limits carried over from the relational schema.
const (
	maxNameLen     = 100
	maxGenderLen   = 10
	maxMobileLen   = 15
	maxReferralLen = 100
	maxDoctorLen   = 100
)

type (
	AppointmentStatus string
	PaymentMode       string
	VisitType         string

	Patient struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		Age       int       `json:"age"`
		Gender    string    `json:"gender"`
		Mobile    string    `json:"mobile"`
		Address   *string   `json:"address"`
		Referral  *string   `json:"referral"`
		History   *string   `json:"history"`
		CreatedAt time.Time `json:"created_at"`
	}

	Appointment struct {
		ID              int64             `json:"id"`
		PatientID       int64             `json:"patient_id"`
		DoctorName      string            `json:"doctor_name"`
		AppointmentDate time.Time         `json:"appointment_date"`
		Status          AppointmentStatus `json:"status"`
		Patient         *Patient          `json:"patient,omitempty"`
	}

	Payment struct {
		ID          int64       `json:"id"`
		PatientID   int64       `json:"patient_id"`
		Amount      Money       `json:"amount"`
		PaymentDate time.Time   `json:"payment_date"`
		PaymentMode PaymentMode `json:"payment_mode"`
		Notes       *string     `json:"notes"`
		Patient     *Patient    `json:"patient,omitempty"`
	}

	// Visit is a clinical encounter. The prescription fields are all optional.
	Visit struct {
		ID            int64     `json:"id"`
		PatientID     int64     `json:"patient_id"`
		VisitDate     Date      `json:"visit_date"`
		VisitType     VisitType `json:"visit_type"`
		DoctorName    *string   `json:"doctor_name"`
		Notes         *string   `json:"notes"`
		Observation   *string   `json:"observation"`
		Diagnosis     *string   `json:"diagnosis"`
		Medicines     *string   `json:"medicines"`
		Tests         *string   `json:"tests"`
		NextVisitDate *Date     `json:"next_visit_date"`
		CreatedAt     time.Time `json:"created_at"`
		Patient       *Patient  `json:"patient,omitempty"`
	}
)

// Inputs carry client supplied fields for create and full replacement.
type (
	PatientInput struct {
		Name     string  `json:"name"`
		Age      *int    `json:"age"`
		Gender   string  `json:"gender"`
		Mobile   string  `json:"mobile"`
		Address  *string `json:"address"`
		Referral *string `json:"referral"`
		History  *string `json:"history"`
	}

	AppointmentInput struct {
		PatientID       int64             `json:"patient_id"`
		DoctorName      string            `json:"doctor_name"`
		AppointmentDate *Timestamp        `json:"appointment_date"`
		Status          AppointmentStatus `json:"status"`
	}

	PaymentInput struct {
		PatientID   int64       `json:"patient_id"`
		Amount      *Money      `json:"amount"`
		PaymentDate *Timestamp  `json:"payment_date"`
		PaymentMode PaymentMode `json:"payment_mode"`
		Notes       *string     `json:"notes"`
	}

	VisitInput struct {
		PatientID     int64     `json:"patient_id"`
		VisitDate     *Date     `json:"visit_date"`
		VisitType     VisitType `json:"visit_type"`
		DoctorName    *string   `json:"doctor_name"`
		Notes         *string   `json:"notes"`
		Observation   *string   `json:"observation"`
		Diagnosis     *string   `json:"diagnosis"`
		Medicines     *string   `json:"medicines"`
		Tests         *string   `json:"tests"`
		NextVisitDate *Date     `json:"next_visit_date"`
	}
)

var (
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrEmptyGender      = errors.New("gender cannot be empty")
	ErrEmptyMobile      = errors.New("mobile cannot be empty")
	ErrEmptyDoctor      = errors.New("doctor name cannot be empty")
	ErrMissingAge       = errors.New("age is required")
	ErrInvalidAge       = errors.New("age must be zero or positive")
	ErrMissingPatient   = errors.New("patient_id must be a positive integer")
	ErrMissingDate      = errors.New("date is required")
	ErrInvalidStatus    = errors.New("status must be one of scheduled, completed, cancelled")
	ErrInvalidMode      = errors.New("payment mode must be one of cash, upi, card")
	ErrInvalidVisitType = errors.New("visit type must be one of new, follow-up")
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeCard:
		return true
	}
	return false
}

func (v VisitType) Valid() bool {
	switch v {
	case VisitNew, VisitFollowUp:
		return true
	}
	return false
}

func (in *PatientInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Gender = strings.TrimSpace(in.Gender)
	in.Mobile = strings.TrimSpace(in.Mobile)
}

func (in PatientInput) Validate() error {
	if err := requireText("name", in.Name, maxNameLen, ErrEmptyName); err != nil {
		return err
	}
	if in.Age == nil {
		return Invalid("age", ErrMissingAge)
	}
	if *in.Age < 0 {
		return Invalid("age", ErrInvalidAge)
	}
	if err := requireText("gender", in.Gender, maxGenderLen, ErrEmptyGender); err != nil {
		return err
	}
	if err := requireText("mobile", in.Mobile, maxMobileLen, ErrEmptyMobile); err != nil {
		return err
	}
	if in.Referral != nil && utf8.RuneCountInString(*in.Referral) > maxReferralLen {
		return Invalidf("referral", "too long (max %d characters)", maxReferralLen)
	}
	return nil
}

// Normalize applies the defaults used when storing an appointment.
func (in *AppointmentInput) Normalize() {
	in.DoctorName = strings.TrimSpace(in.DoctorName)
	if in.Status == "" {
		in.Status = StatusScheduled
	}
}

func (in AppointmentInput) Validate() error {
	if in.PatientID <= 0 {
		return Invalid("patient_id", ErrMissingPatient)
	}
	if err := requireText("doctor_name", in.DoctorName, maxDoctorLen, ErrEmptyDoctor); err != nil {
		return err
	}
	if in.AppointmentDate == nil || in.AppointmentDate.IsZero() {
		return Invalid("appointment_date", ErrMissingDate)
	}
	status := in.Status
	if status == "" {
		status = StatusScheduled
	}
	if !status.Valid() {
		return Invalid("status", ErrInvalidStatus)
	}
	return nil
}

func (in PaymentInput) Validate() error {
	if in.PatientID <= 0 {
		return Invalid("patient_id", ErrMissingPatient)
	}
	if in.Amount == nil {
		return Invalid("amount", ErrInvalidAmount)
	}
	if err := in.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if !in.PaymentMode.Valid() {
		return Invalid("payment_mode", ErrInvalidMode)
	}
	return nil
}

// ValidateForUpdate additionally requires the business payment date, which
// only defaults on create.
func (in PaymentInput) ValidateForUpdate() error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.PaymentDate == nil || in.PaymentDate.IsZero() {
		return Invalid("payment_date", ErrMissingDate)
	}
	return nil
}

func (in VisitInput) Validate() error {
	if in.PatientID <= 0 {
		return Invalid("patient_id", ErrMissingPatient)
	}
	if in.VisitDate == nil {
		return Invalid("visit_date", ErrMissingDate)
	}
	if err := in.VisitDate.Validate(); err != nil {
		return Invalid("visit_date", err)
	}
	if !in.VisitType.Valid() {
		return Invalid("visit_type", ErrInvalidVisitType)
	}
	if in.NextVisitDate != nil {
		if err := in.NextVisitDate.Validate(); err != nil {
			return Invalid("next_visit_date", err)
		}
	}
	return nil
}

func requireText(field, value string, max int, empty error) error {
	if strings.TrimSpace(value) == "" {
		return Invalid(field, empty)
	}
	if utf8.RuneCountInString(value) > max {
		return Invalid(field, fmt.Errorf("too long (max %d characters)", max))
	}
	return nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
