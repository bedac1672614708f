package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{-1, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed connection", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other", errors.New("some other error"), false},
		{"validation", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "clinic", queueName: "clinic_payments"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("circuit breaker should be closed initially")
		}
	})

	t.Run("success resets state", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 3)
		atomic.StoreInt32(&client.state, StateOpen)

		client.recordSuccess()

		if client.isCircuitOpen() {
			t.Error("circuit breaker should be closed after success")
		}
		if n := atomic.LoadInt64(&client.failureCount); n != 0 {
			t.Errorf("failure count = %d, want 0", n)
		}
	})

	t.Run("max failures open circuit", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 0)
		atomic.StoreInt32(&client.state, StateClosed)

		for i := 0; i < maxFailures; i++ {
			client.recordFailure()
		}

		if !client.isCircuitOpen() {
			t.Error("circuit breaker should be open after max failures")
		}
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)

		if client.isCircuitOpen() {
			t.Error("circuit should let a probe through after the timeout")
		}
		if s := atomic.LoadInt32(&client.state); s != StateHalfOpen {
			t.Errorf("state = %d, want StateHalfOpen", s)
		}
	})

	t.Run("failed probe reopens", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateHalfOpen)
		atomic.StoreInt64(&client.failureCount, 0)

		client.recordFailure()

		if s := atomic.LoadInt32(&client.state); s != StateOpen {
			t.Errorf("state = %d, want StateOpen", s)
		}
	})
}

func TestClient_PublishPaymentEvent_Guards(t *testing.T) {
	client := &Client{exchangeName: "clinic", queueName: "clinic_payments"}
	ev := NewPaymentEvent(EventPaymentRecorded, core.Payment{ID: 1, PatientID: 2})

	t.Run("fails fast when circuit is open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishPaymentEvent(context.Background(), ev)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected ErrCircuitOpen, got %v", err)
		}
		if !strings.Contains(err.Error(), "circuit breaker is open") {
			t.Errorf("error should mention circuit breaker, got: %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateClosed)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.PublishPaymentEvent(ctx, ev); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestPaymentEvent_JSON(t *testing.T) {
	paid := time.Date(2024, 1, 20, 9, 30, 0, 0, time.UTC)
	p := core.Payment{
		ID: 42, PatientID: 7, Amount: core.Money{Cents: 12550},
		PaymentDate: paid, PaymentMode: core.ModeUPI, Notes: core.StringPtr("follow-up fee"),
	}

	ev := NewPaymentEvent(EventPaymentUpdated, p)
	if ev.OccurredAt.IsZero() {
		t.Error("OccurredAt should be set")
	}

	body, err := ev.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	got, err := PaymentEventFromJSON(body)
	if err != nil {
		t.Fatalf("PaymentEventFromJSON() error = %v", err)
	}

	if got.Event != EventPaymentUpdated || got.PaymentID != 42 || got.PatientID != 7 {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.Amount().String() != "125.50" {
		t.Errorf("Amount() = %s, want 125.50", got.Amount())
	}
	if !got.PaymentDate.Equal(paid) {
		t.Errorf("PaymentDate = %v, want %v", got.PaymentDate, paid)
	}
	if got.Notes != "follow-up fee" {
		t.Errorf("Notes = %q", got.Notes)
	}
}

func TestPaymentEventFromJSON_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad json":      `{"payment_id": "x"}`,
		"unknown event": `{"event": "payment.refunded", "payment_id": 1}`,
		"missing id":    `{"event": "payment.recorded"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := PaymentEventFromJSON([]byte(body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func TestDispatch(t *testing.T) {
	logger := log.Discard()
	valid, _ := NewPaymentEvent(EventPaymentRecorded, core.Payment{ID: 5, PatientID: 1}).ToJSON()
	ok := func(context.Context, *PaymentEvent) error { return nil }
	failing := func(context.Context, *PaymentEvent) error { return errors.New("sheets down") }

	t.Run("ack on success", func(t *testing.T) {
		ack := &fakeAck{}
		dispatch(context.Background(), logger, valid, ack, ok)
		if !ack.acked || ack.nacked {
			t.Errorf("expected ack, got %+v", ack)
		}
	})

	t.Run("requeue on handler error", func(t *testing.T) {
		ack := &fakeAck{}
		dispatch(context.Background(), logger, valid, ack, failing)
		if !ack.nacked || !ack.requeue {
			t.Errorf("expected nack with requeue, got %+v", ack)
		}
	})

	t.Run("drop malformed", func(t *testing.T) {
		ack := &fakeAck{}
		called := false
		dispatch(context.Background(), logger, []byte("not json"), ack, func(context.Context, *PaymentEvent) error {
			called = true
			return nil
		})
		if called {
			t.Error("handler must not run for malformed messages")
		}
		if !ack.nacked || ack.requeue {
			t.Errorf("expected nack without requeue, got %+v", ack)
		}
	})
}
