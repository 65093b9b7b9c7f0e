package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets/:id", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets/:id", "GET", 200, 30*time.Millisecond)
	m.RecordRequest("/orders", "POST", 201, 5*time.Millisecond)
	m.RecordError("/orders", "POST", "INVALID_ORDER_DATA")
	m.RecordWarning("provision_channels")

	snap := m.Snapshot()
	if len(snap.Requests) != 2 || snap.Requests[0].Key != "/orders|POST|201" {
		t.Fatalf("requests = %+v", snap.Requests)
	}
	if snap.Requests[1].Count != 2 {
		t.Errorf("ticket reads = %d", snap.Requests[1].Count)
	}
	if len(snap.Latency) != 2 || snap.Latency[1].MeanMS != 20 {
		t.Errorf("latency = %+v", snap.Latency)
	}
	if len(snap.Errors) != 1 || len(snap.Warnings) != 1 {
		t.Errorf("errors = %+v warnings = %+v", snap.Errors, snap.Warnings)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordWarning("x")
	if snap := m.Snapshot(); snap.Requests == nil || len(snap.Requests) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
