package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clinic/internal/amqp"
	"clinic/internal/core"
	"clinic/internal/log"
	"clinic/internal/storage"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.PaymentEvent
	err    error
}

func (p *recordingPublisher) PublishPaymentEvent(_ context.Context, ev *amqp.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Event)
	}
	return out
}

var errBrokerDown = errors.New("broker down")

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	url := "sqlite:///" + filepath.Join(t.TempDir(), "clinic.db")
	s, err := storage.Open(context.Background(), url, storage.Options{Logger: log.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecordService(t *testing.T, pub PaymentPublisher) *RecordService {
	t.Helper()
	svc := NewRecordService(newTestStore(t), pub, log.Discard())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func intPtr(v int) *int { return &v }

func validPatient(name string) core.PatientInput {
	return core.PatientInput{Name: name, Age: intPtr(42), Gender: "M", Mobile: "9876543210"}
}

func mustPatient(t *testing.T, svc *RecordService, name string) *core.Patient {
	t.Helper()
	p, err := svc.CreatePatient(context.Background(), validPatient(name))
	require.NoError(t, err)
	return p
}

func timestamp(t time.Time) *core.Timestamp {
	return &core.Timestamp{Time: t}
}

func money(cents int64) *core.Money {
	return &core.Money{Cents: cents}
}

func date(y, m, d int) *core.Date {
	v := core.NewDate(y, m, d)
	return &v
}
