package backend

import (
	"context"
	"errors"
	"fmt"

	"clinic/internal/amqp"
	"clinic/internal/log"
	"clinic/internal/metrics"
	"clinic/internal/services"
	"clinic/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the store, connects to the broker when configured and
// builds the services on top.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := f.logger.WithComponent(log.ComponentBackend)
	collector := metrics.New()

	store, err := storage.Open(ctx, config.DatabaseURL, storage.Options{
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		Logger:          f.logger,
		Observer:        collector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	collector.RegisterDB(string(store.Dialect()), store.Stats)

	var client *amqp.Client
	if config.AMQPURL != "" {
		client, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			if config.RequireAMQP {
				_ = store.Close()
				return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
			}
			logger.Warn("Failed to initialize AMQP client, continuing without payment events", log.FieldError, err)
			client = nil
		} else {
			logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		}
	}

	// A nil *amqp.Client must not reach the interface field.
	var publisher services.PaymentPublisher
	if client != nil {
		publisher = &instrumentedPublisher{next: client, metrics: collector}
	}

	b := &Backend{
		Store:   store,
		Records: services.NewRecordService(store, publisher, f.logger),
		Reports: services.NewReportService(store, f.logger),
		Metrics: collector,
		AMQP:    client,
	}

	logger.Info("Initialized backend",
		log.FieldDialect, string(store.Dialect()),
		"amqp_enabled", client != nil)

	return &BackendResult{Backend: b, Cleanup: b.close}, nil
}

func (b *Backend) close() error {
	var errs []error
	if b.AMQP != nil {
		if err := b.AMQP.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
	}
	if err := b.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// instrumentedPublisher counts published payment events.
type instrumentedPublisher struct {
	next    services.PaymentPublisher
	metrics *metrics.Collector
}

func (p *instrumentedPublisher) PublishPaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error {
	err := p.next.PublishPaymentEvent(ctx, ev)
	p.metrics.ObserveEvent(string(ev.Event), err)
	return err
}
