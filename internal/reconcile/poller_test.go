package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
	"github.com/mmeshcher/checkout-gateway/internal/model"
)

func fastOpts() []Option {
	return []Option{
		WithInterval(2 * time.Millisecond),
		WithDeadline(50 * time.Millisecond),
	}
}

// sequenceLookup возвращает по одному ответу из списка; последний ответ
// повторяется для всех последующих запросов.
func sequenceLookup(steps []func() (model.Transaction, error)) (Lookup, *int32) {
	var calls int32
	return func(ctx context.Context) (model.Transaction, error) {
		n := atomic.AddInt32(&calls, 1)
		i := int(n) - 1
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i]()
	}, &calls
}

func TestRun_PaidImmediately(t *testing.T) {
	lookup, calls := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) {
			return model.TransactionPaid{ID: "t1", UniqueCode: "ABCD12", PackageType: model.PackageTypeDigital}, nil
		},
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StatePaid {
		t.Fatalf("state = %q, want paid", res.State)
	}
	if res.Paid == nil || res.Paid.UniqueCode != "ABCD12" {
		t.Fatalf("paid record missing: %+v", res)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("lookup calls = %d, want 1", got)
	}
}

func TestRun_FailedImmediately(t *testing.T) {
	lookup, _ := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) {
			return model.TransactionFailed{UniqueCode: "ABCD12"}, nil
		},
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("state = %q, want failed", res.State)
	}
}

func TestRun_NotFoundThenPaid(t *testing.T) {
	lookup, calls := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) { return nil, backend.ErrNotFound },
		func() (model.Transaction, error) {
			return model.TransactionPaid{ID: "t1", UniqueCode: "ABCD12"}, nil
		},
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	if got := p.State(); got != StateInitial {
		t.Fatalf("state before run = %q, want initial", got)
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StatePaid {
		t.Fatalf("state = %q, want paid", res.State)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("lookup calls = %d, want 2", got)
	}
}

func TestRun_EndlessMissTimesOut(t *testing.T) {
	lookup, _ := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) { return nil, backend.ErrNotFound },
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StateTimedOut {
		t.Fatalf("state = %q, want timed_out", res.State)
	}
}

// Запись с paymentStatus=paid, но без _id не финализирована: опрос
// продолжается до дедлайна, успех не объявляется.
func TestRun_PaidPaymentStatusWithoutIDNeverFinalizes(t *testing.T) {
	lookup, _ := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) {
			return model.ClassifyTransaction(&model.RawTransaction{
				PaymentStatus: "paid",
				UniqueCode:    "ABCD12",
			}), nil
		},
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State == StatePaid {
		t.Fatalf("record without _id must never finalize as paid")
	}
	if res.State != StateTimedOut {
		t.Fatalf("state = %q, want timed_out", res.State)
	}
}

func TestRun_TransientNetworkErrorKeepsPolling(t *testing.T) {
	lookup, calls := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) { return nil, errors.New("connection reset") },
		func() (model.Transaction, error) {
			return model.TransactionPaid{ID: "t1", UniqueCode: "ABCD12"}, nil
		},
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StatePaid {
		t.Fatalf("state = %q, want paid", res.State)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("lookup calls = %d, want 2", got)
	}
}

func TestRun_UnauthorizedStopsWithError(t *testing.T) {
	lookup, calls := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) { return nil, backend.ErrNotFound },
		func() (model.Transaction, error) { return nil, backend.ErrUnauthorized },
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != StateErrored {
		t.Fatalf("state = %q, want errored", res.State)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("lookup calls = %d, want 2 (no retries after 401)", got)
	}
}

func TestRun_CancelStopsWithoutTerminalState(t *testing.T) {
	lookup, _ := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) { return nil, backend.ErrNotFound },
	})

	p := NewPoller(lookup, nil, WithInterval(5*time.Millisecond), WithDeadline(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(12 * time.Millisecond)
		cancel()
	}()

	_, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := p.State(); got.Terminal() {
		t.Fatalf("cancelled poller must not reach a terminal state, got %q", got)
	}
}

func TestRun_TerminalStateIsIdempotent(t *testing.T) {
	lookup, calls := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) {
			return model.TransactionPaid{ID: "t1", UniqueCode: "ABCD12"}, nil
		},
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}

	if first != second {
		t.Fatalf("second Run must return the stored result")
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("lookup calls = %d, want 1 (no polling after terminal state)", got)
	}
}

func TestRun_TimedOutIsIdempotent(t *testing.T) {
	lookup, calls := sequenceLookup([]func() (model.Transaction, error){
		func() (model.Transaction, error) { return nil, backend.ErrNotFound },
	})

	p := NewPoller(lookup, nil, fastOpts()...)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	if first.State != StateTimedOut {
		t.Fatalf("state = %q, want timed_out", first.State)
	}

	before := atomic.LoadInt32(calls)
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if second.State != StateTimedOut {
		t.Fatalf("second state = %q, want timed_out", second.State)
	}
	if after := atomic.LoadInt32(calls); after != before {
		t.Fatalf("timed out poller issued %d extra lookups", after-before)
	}
}
