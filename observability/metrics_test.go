package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"stakerchain/core/events"
)

func TestStakerMetricsRecordOperation(t *testing.T) {
	m := Staker()
	counter := m.operations.WithLabelValues("stake", "success")
	before := testutil.ToFloat64(counter)
	m.RecordOperation("stake", "success")
	m.RecordOperation(" stake ", "success")
	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Fatalf("expected %v, got %v", before+2, got)
	}

	fallback := m.operations.WithLabelValues("unknown", "error")
	before = testutil.ToFloat64(fallback)
	m.RecordOperation("", "")
	if got := testutil.ToFloat64(fallback); got != before+1 {
		t.Fatalf("expected fallback labels to be used")
	}
}

func TestStakerMetricsSetPool(t *testing.T) {
	m := Staker()
	m.SetPool(big.NewInt(1500), false)
	if got := testutil.ToFloat64(m.poolBalance); got != 1500 {
		t.Fatalf("expected pool balance 1500, got %v", got)
	}
	if got := testutil.ToFloat64(m.completed); got != 0 {
		t.Fatalf("expected completed 0, got %v", got)
	}
	m.SetPool(nil, true)
	if got := testutil.ToFloat64(m.poolBalance); got != 0 {
		t.Fatalf("expected nil balance to publish 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.completed); got != 1 {
		t.Fatalf("expected completed 1, got %v", got)
	}
}

func TestRPCMetricsObserve(t *testing.T) {
	m := RPC()
	errs := m.errors.WithLabelValues("staker_execute", "-32010")
	before := testutil.ToFloat64(errs)
	m.Observe("staker_execute", -32010, 5*time.Millisecond)
	m.Observe("staker_execute", 0, time.Millisecond)
	if got := testutil.ToFloat64(errs); got != before+1 {
		t.Fatalf("expected one recorded error, got %v", got-before)
	}

	throttles := m.throttles.WithLabelValues("rate_limit")
	before = testutil.ToFloat64(throttles)
	m.RecordThrottle("rate_limit")
	if got := testutil.ToFloat64(throttles); got != before+1 {
		t.Fatalf("expected throttle to be recorded")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var s *StakerMetrics
	s.RecordOperation("stake", "success")
	s.SetPool(big.NewInt(1), true)
	var r *rpcMetrics
	r.Observe("x", 1, time.Second)
	r.RecordThrottle("x")
	var e *EventMetrics
	e.Emit(events.Transfer{})
}

func TestEventMetricsCountsByType(t *testing.T) {
	m := Events()
	counter := m.emitted.WithLabelValues(events.TypeTransfer)
	before := testutil.ToFloat64(counter)
	events.MultiEmitter{m, events.NoopEmitter{}}.Emit(events.Transfer{Amount: big.NewInt(1)})
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("expected transfer event to be counted")
	}
}
