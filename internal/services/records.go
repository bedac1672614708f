package services

import (
	"context"
	"fmt"
	"time"

	"clinic/internal/amqp"
	"clinic/internal/core"
	"clinic/internal/log"
	"clinic/internal/storage"
)

// MaxPageLimit bounds the limit accepted by list operations.
const MaxPageLimit = 1000

// PaymentPublisher emits payment lifecycle events. *amqp.Client implements it.
type PaymentPublisher interface {
	PublishPaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error
}

// RecordService validates input and orchestrates record persistence plus
// payment event publishing.
type RecordService struct {
	store      *storage.Store
	publisher  PaymentPublisher
	logger     *log.Logger
	structured *log.StructuredLogger
	now        func() time.Time
}

// NewRecordService builds the service. publisher may be nil, in which case
// no events are emitted.
func NewRecordService(store *storage.Store, publisher PaymentPublisher, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentRecords)
	return &RecordService{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ValidatePage checks skip/limit bounds shared by all listings.
func ValidatePage(p storage.Page) error {
	if p.Skip < 0 {
		return core.Invalidf("skip", "must be zero or positive")
	}
	if p.Limit < 0 {
		return core.Invalidf("limit", "must be zero or positive")
	}
	if p.Limit > MaxPageLimit {
		return core.Invalidf("limit", "must not exceed %d", MaxPageLimit)
	}
	return nil
}

// Patients

func (s *RecordService) GetPatient(ctx context.Context, id int64) (*core.Patient, error) {
	return s.store.GetPatient(ctx, id)
}

func (s *RecordService) ListPatients(ctx context.Context, f storage.PatientFilter) ([]core.Patient, error) {
	if err := ValidatePage(f.Page); err != nil {
		return nil, err
	}
	return s.store.ListPatients(ctx, f)
}

func (s *RecordService) CreatePatient(ctx context.Context, in core.PatientInput) (*core.Patient, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreatePatient(ctx, in, s.now())
}

func (s *RecordService) UpdatePatient(ctx context.Context, id int64, in core.PatientInput) (*core.Patient, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdatePatient(ctx, id, in)
}

// DeletePatient fails with *core.ConflictError while dependents exist.
func (s *RecordService) DeletePatient(ctx context.Context, id int64) (*core.Patient, error) {
	return s.store.DeletePatient(ctx, id)
}

// Appointments

// GetAppointment embeds the owning patient.
func (s *RecordService) GetAppointment(ctx context.Context, id int64) (*core.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil || a == nil {
		return a, err
	}
	if a.Patient, err = s.store.GetPatient(ctx, a.PatientID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *RecordService) ListAppointments(ctx context.Context, page storage.Page) ([]core.Appointment, error) {
	if err := ValidatePage(page); err != nil {
		return nil, err
	}
	return s.store.ListAppointments(ctx, page)
}

func (s *RecordService) CreateAppointment(ctx context.Context, in core.AppointmentInput) (*core.Appointment, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreateAppointment(ctx, in)
}

func (s *RecordService) UpdateAppointment(ctx context.Context, id int64, in core.AppointmentInput) (*core.Appointment, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateAppointment(ctx, id, in)
}

func (s *RecordService) DeleteAppointment(ctx context.Context, id int64) (*core.Appointment, error) {
	return s.store.DeleteAppointment(ctx, id)
}

// Payments

// GetPayment embeds the owning patient.
func (s *RecordService) GetPayment(ctx context.Context, id int64) (*core.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	if p.Patient, err = s.store.GetPatient(ctx, p.PatientID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RecordService) ListPayments(ctx context.Context, page storage.Page) ([]core.Payment, error) {
	if err := ValidatePage(page); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, page)
}

func (s *RecordService) ListPaymentsByPatient(ctx context.Context, patientID int64) ([]core.Payment, error) {
	return s.store.ListPaymentsByPatient(ctx, patientID)
}

// CreatePayment defaults payment_date to now when omitted.
func (s *RecordService) CreatePayment(ctx context.Context, in core.PaymentInput) (*core.Payment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	paidAt := s.now()
	if in.PaymentDate != nil && !in.PaymentDate.IsZero() {
		paidAt = in.PaymentDate.Time
	}
	p, err := s.store.CreatePayment(ctx, in, paidAt)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, amqp.EventPaymentRecorded, *p)
	return p, nil
}

func (s *RecordService) UpdatePayment(ctx context.Context, id int64, in core.PaymentInput) (*core.Payment, error) {
	if err := in.ValidateForUpdate(); err != nil {
		return nil, err
	}
	p, err := s.store.UpdatePayment(ctx, id, in)
	if err != nil || p == nil {
		return p, err
	}
	s.publish(ctx, amqp.EventPaymentUpdated, *p)
	return p, nil
}

func (s *RecordService) DeletePayment(ctx context.Context, id int64) (*core.Payment, error) {
	p, err := s.store.DeletePayment(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	s.publish(ctx, amqp.EventPaymentDeleted, *p)
	return p, nil
}

// publish never fails the caller: the payment is already committed.
func (s *RecordService) publish(ctx context.Context, event amqp.EventType, p core.Payment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPaymentEvent(ctx, amqp.NewPaymentEvent(event, p)); err != nil {
		fields := log.NewFields().
			WithRecord(core.EntityPayment, p.ID).
			WithPayment(p.PatientID, p.Amount.Cents, string(p.PaymentMode))
		fields[log.FieldEvent] = string(event)
		s.structured.LogError(ctx, "Failed to publish payment event", err,
			log.ErrorTypeNetwork, log.ComponentAMQP, log.OpPublish, fields)
	}
}

// Visits

// GetVisit embeds the owning patient.
func (s *RecordService) GetVisit(ctx context.Context, id int64) (*core.Visit, error) {
	v, err := s.store.GetVisit(ctx, id)
	if err != nil || v == nil {
		return v, err
	}
	if v.Patient, err = s.store.GetPatient(ctx, v.PatientID); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *RecordService) ListVisits(ctx context.Context, f storage.VisitFilter) ([]core.Visit, error) {
	if err := ValidatePage(f.Page); err != nil {
		return nil, err
	}
	if f.PatientID < 0 {
		return nil, core.Invalid("patient_id", core.ErrMissingPatient)
	}
	return s.store.ListVisits(ctx, f)
}

func (s *RecordService) CreateVisit(ctx context.Context, in core.VisitInput) (*core.Visit, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreateVisit(ctx, in, s.now())
}

func (s *RecordService) UpdateVisit(ctx context.Context, id int64, in core.VisitInput) (*core.Visit, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateVisit(ctx, id, in)
}

func (s *RecordService) DeleteVisit(ctx context.Context, id int64) (*core.Visit, error) {
	return s.store.DeleteVisit(ctx, id)
}

// Ping reports whether the backing store is reachable.
func (s *RecordService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}
