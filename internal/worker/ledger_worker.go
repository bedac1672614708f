// Package worker holds the background consumers run by cmd/clinic-ledger-worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"clinic/internal/amqp"
	"clinic/internal/core"
	"clinic/internal/ledger"
	"clinic/internal/log"
)

// PaymentReader loads the current state of a payment. A missing payment is
// reported as (nil, nil) or as a core.ErrNotFound error.
type PaymentReader interface {
	GetPayment(ctx context.Context, id int64) (*core.Payment, error)
}

// RowObserver counts ledger appends.
type RowObserver interface {
	ObserveLedgerRow(event string, err error)
}

// Consumer delivers payment events until ctx ends.
type Consumer interface {
	ConsumeWithRetry(ctx context.Context, handler func(context.Context, *amqp.PaymentEvent) error) error
}

// LedgerWorker mirrors payment events into a ledger.
type LedgerWorker struct {
	payments PaymentReader
	ledger   ledger.Writer
	observer RowObserver
	logger   *log.Logger
}

func NewLedgerWorker(payments PaymentReader, writer ledger.Writer, observer RowObserver, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerWorker{
		payments: payments,
		ledger:   writer,
		observer: observer,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes events until ctx is cancelled.
func (w *LedgerWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Ledger worker started", log.FieldOperation, log.OpStartup)
	err := consumer.ConsumeWithRetry(ctx, w.HandlePaymentEvent)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandlePaymentEvent appends one ledger row for ev. Recorded and updated
// events are written from the stored payment so the ledger reflects the
// latest values; a payment deleted in the meantime is skipped. Deleted events
// are written from the payload. A returned error causes a requeue.
func (w *LedgerWorker) HandlePaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error {
	var row ledger.Row

	switch ev.Event {
	case amqp.EventPaymentRecorded, amqp.EventPaymentUpdated:
		p, err := w.payments.GetPayment(ctx, ev.PaymentID)
		if errors.Is(err, core.ErrNotFound) {
			p, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("get payment %d: %w", ev.PaymentID, err)
		}
		if p == nil {
			w.logger.WarnContext(ctx, "Payment no longer exists, skipping ledger row",
				log.FieldEvent, string(ev.Event), log.FieldID, ev.PaymentID)
			return nil
		}
		row = rowFromPayment(string(ev.Event), *p)
	case amqp.EventPaymentDeleted:
		row = rowFromEvent(ev)
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown payment event", log.FieldEvent, string(ev.Event))
		return nil
	}

	ref, err := w.ledger.AppendPaymentRow(ctx, row)
	if w.observer != nil {
		w.observer.ObserveLedgerRow(row.Event, err)
	}
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}

	w.logger.InfoContext(ctx, "Mirrored payment to ledger",
		log.FieldEvent, row.Event,
		log.FieldID, row.PaymentID,
		log.FieldPatientID, row.PatientID,
		log.FieldAmountCents, row.Amount.Cents,
		"ref", ref)
	return nil
}

func rowFromPayment(event string, p core.Payment) ledger.Row {
	row := ledger.Row{
		Event:       event,
		PaymentID:   p.ID,
		PatientID:   p.PatientID,
		PaymentDate: p.PaymentDate,
		Amount:      p.Amount,
		Mode:        p.PaymentMode,
	}
	if p.Notes != nil {
		row.Notes = *p.Notes
	}
	return row
}

func rowFromEvent(ev *amqp.PaymentEvent) ledger.Row {
	return ledger.Row{
		Event:       string(ev.Event),
		PaymentID:   ev.PaymentID,
		PatientID:   ev.PatientID,
		PaymentDate: ev.PaymentDate,
		Amount:      ev.Amount(),
		Mode:        ev.PaymentMode,
		Notes:       ev.Notes,
	}
}

// Serve runs the consumer next to srv, which typically exposes metrics.
// Either one failing stops the other. A nil return means ctx was cancelled
// and both shut down cleanly; any other outcome is an error.
func (w *LedgerWorker) Serve(ctx context.Context, consumer Consumer, srv *http.Server, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx, consumer); err != nil {
			return fmt.Errorf("consume payment events: %w", err)
		}
		if ctx.Err() == nil && gctx.Err() == nil {
			return errors.New("consumer stopped unexpectedly")
		}
		return nil
	})
	g.Go(func() error {
		w.logger.InfoContext(ctx, "Serving worker metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
