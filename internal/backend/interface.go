package backend

import (
	"context"
	"time"

	"clinic/internal/amqp"
	"clinic/internal/metrics"
	"clinic/internal/services"
	"clinic/internal/storage"
)

// CleanupFunc releases everything a Backend holds.
type CleanupFunc func() error

// Backend is the wired set of components the binaries run on.
type Backend struct {
	Store   *storage.Store
	Records *services.RecordService
	Reports *services.ReportService
	Metrics *metrics.Collector

	// AMQP is nil when payment events are disabled or the broker was
	// unreachable at startup.
	AMQP *amqp.Client
}

// BackendResult contains the backend and its cleanup function.
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// Factory creates backends from configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds what the factory needs, independent of how it was loaded.
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// RequireAMQP makes an unreachable broker fatal instead of disabling
	// events. The ledger worker sets it.
	RequireAMQP bool
}
