package worker

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic/internal/amqp"
	"clinic/internal/core"
	"clinic/internal/ledger"
	"clinic/internal/ledger/memory"
	"clinic/internal/log"
	"clinic/internal/metrics"
	"clinic/internal/services"
	"clinic/internal/storage"
)

var (
	_ PaymentReader = (*storage.Store)(nil)
	_ PaymentReader = (*services.RecordService)(nil)
	_ RowObserver   = (*metrics.Collector)(nil)
	_ Consumer      = (*amqp.Client)(nil)
)

type fakePayments struct {
	byID map[int64]core.Payment
	err  error
}

func (f *fakePayments) GetPayment(_ context.Context, id int64) (*core.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeObserver struct {
	calls []string
}

func (o *fakeObserver) ObserveLedgerRow(event string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.calls = append(o.calls, event+":"+status)
}

type failingLedger struct{}

func (failingLedger) AppendPaymentRow(context.Context, ledger.Row) (string, error) {
	return "", errors.New("quota exceeded")
}

type scriptedConsumer struct {
	events []*amqp.PaymentEvent
	errs   []error
}

func (c *scriptedConsumer) ConsumeWithRetry(ctx context.Context, handler func(context.Context, *amqp.PaymentEvent) error) error {
	for _, ev := range c.events {
		c.errs = append(c.errs, handler(ctx, ev))
	}
	return context.Canceled
}

var paidAt = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func storedPayment() core.Payment {
	return core.Payment{
		ID:          5,
		PatientID:   2,
		Amount:      core.Money{Cents: 25000},
		PaymentDate: paidAt,
		PaymentMode: core.ModeCard,
		Notes:       core.StringPtr("follow-up"),
	}
}

func TestHandlePaymentEventUsesStoredPayment(t *testing.T) {
	payments := &fakePayments{byID: map[int64]core.Payment{5: storedPayment()}}
	rows := memory.New()
	observer := &fakeObserver{}
	w := NewLedgerWorker(payments, rows, observer, log.Discard())

	// The event carries a stale amount; the ledger must show the stored one.
	stale := amqp.NewPaymentEvent(amqp.EventPaymentUpdated, core.Payment{ID: 5, PatientID: 2, Amount: core.Money{Cents: 100}})
	require.NoError(t, w.HandlePaymentEvent(context.Background(), stale))

	got := rows.Rows()
	require.Len(t, got, 1)
	assert.Equal(t, "payment.updated", got[0].Event)
	assert.Equal(t, int64(25000), got[0].Amount.Cents)
	assert.Equal(t, core.ModeCard, got[0].Mode)
	assert.Equal(t, "follow-up", got[0].Notes)
	assert.True(t, got[0].PaymentDate.Equal(paidAt))
	assert.Equal(t, []string{"payment.updated:ok"}, observer.calls)
}

func TestHandlePaymentEventSkipsMissingPayment(t *testing.T) {
	rows := memory.New()
	w := NewLedgerWorker(&fakePayments{byID: map[int64]core.Payment{}}, rows, nil, log.Discard())

	ev := amqp.NewPaymentEvent(amqp.EventPaymentRecorded, core.Payment{ID: 9, PatientID: 1})
	require.NoError(t, w.HandlePaymentEvent(context.Background(), ev))
	assert.Empty(t, rows.Rows())

	notFound := &fakePayments{err: &core.NotFoundError{Entity: core.EntityPayment, ID: 9}}
	w = NewLedgerWorker(notFound, rows, nil, log.Discard())
	require.NoError(t, w.HandlePaymentEvent(context.Background(), ev))
	assert.Empty(t, rows.Rows())
}

func TestHandlePaymentEventDeletedUsesPayload(t *testing.T) {
	payments := &fakePayments{err: errors.New("must not be called")}
	rows := memory.New()
	w := NewLedgerWorker(payments, rows, nil, log.Discard())

	ev := amqp.NewPaymentEvent(amqp.EventPaymentDeleted, storedPayment())
	require.NoError(t, w.HandlePaymentEvent(context.Background(), ev))

	got := rows.Rows()
	require.Len(t, got, 1)
	assert.Equal(t, "payment.deleted", got[0].Event)
	assert.Equal(t, int64(5), got[0].PaymentID)
	assert.Equal(t, int64(25000), got[0].Amount.Cents)
	assert.Equal(t, "follow-up", got[0].Notes)
}

func TestHandlePaymentEventErrorsRequeue(t *testing.T) {
	ctx := context.Background()
	ev := amqp.NewPaymentEvent(amqp.EventPaymentRecorded, storedPayment())

	dbDown := NewLedgerWorker(&fakePayments{err: errors.New("connection refused")}, memory.New(), nil, log.Discard())
	assert.ErrorContains(t, dbDown.HandlePaymentEvent(ctx, ev), "get payment 5")

	observer := &fakeObserver{}
	sheetDown := NewLedgerWorker(&fakePayments{byID: map[int64]core.Payment{5: storedPayment()}}, failingLedger{}, observer, log.Discard())
	assert.ErrorContains(t, sheetDown.HandlePaymentEvent(ctx, ev), "quota exceeded")
	assert.Equal(t, []string{"payment.recorded:error"}, observer.calls)
}

func TestRun(t *testing.T) {
	rows := memory.New()
	w := NewLedgerWorker(&fakePayments{byID: map[int64]core.Payment{5: storedPayment()}}, rows, nil, log.Discard())
	consumer := &scriptedConsumer{events: []*amqp.PaymentEvent{
		amqp.NewPaymentEvent(amqp.EventPaymentRecorded, storedPayment()),
		amqp.NewPaymentEvent(amqp.EventPaymentDeleted, storedPayment()),
	}}

	require.NoError(t, w.Run(context.Background(), consumer))
	assert.Equal(t, []error{nil, nil}, consumer.errs)
	assert.Len(t, rows.Rows(), 2)
}

type brokenConsumer struct{ err error }

func (c brokenConsumer) ConsumeWithRetry(context.Context, func(context.Context, *amqp.PaymentEvent) error) error {
	return c.err
}

type blockingConsumer struct{}

func (blockingConsumer) ConsumeWithRetry(ctx context.Context, _ func(context.Context, *amqp.PaymentEvent) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func metricsServer() *http.Server {
	return &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
}

func TestServe_ConsumerFailureIsReturned(t *testing.T) {
	w := NewLedgerWorker(&fakePayments{}, memory.New(), nil, log.Discard())

	done := make(chan error, 1)
	go func() {
		done <- w.Serve(context.Background(), brokenConsumer{err: errors.New("channel closed")}, metricsServer(), time.Second)
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorContains(t, err, "channel closed")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the consumer failed")
	}
}

func TestServe_ConsumerStoppingEarlyIsAnError(t *testing.T) {
	w := NewLedgerWorker(&fakePayments{}, memory.New(), nil, log.Discard())
	err := w.Serve(context.Background(), &scriptedConsumer{}, metricsServer(), time.Second)
	assert.ErrorContains(t, err, "stopped unexpectedly")
}

func TestServe_CancelledContextIsClean(t *testing.T) {
	w := NewLedgerWorker(&fakePayments{}, memory.New(), nil, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx, blockingConsumer{}, metricsServer(), time.Second) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
