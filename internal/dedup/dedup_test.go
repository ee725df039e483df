package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/kkrriders/airra/internal/models"
)

func newTestTable(t *testing.T, window time.Duration) *Table {
	t.Helper()
	tbl, err := NewTable(window, 1000, `^(pod_name|instance|container_id)$`)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func sig(service, metric string, labels map[string]string) models.Signal {
	return models.Signal{
		Service:    service,
		MetricName: metric,
		Source:     models.SourceMetric,
		Labels:     labels,
		Timestamp:  time.Now(),
	}
}

func TestAdmitSuppressesWithinWindow(t *testing.T) {
	tbl := newTestTable(t, 5*time.Minute)
	s := sig("payment-service", "error_rate", nil)

	if tbl.Admit(s) == nil {
		t.Fatal("first occurrence must be admitted")
	}
	for i := 0; i < 9; i++ {
		if tbl.Admit(s) != nil {
			t.Fatal("duplicate within window must be suppressed")
		}
	}
	if got := tbl.SuppressedCount(s); got != 10 {
		t.Errorf("SuppressedCount = %d, want 10", got)
	}
	if got := tbl.CompressionRatio(); got != 10.0 {
		t.Errorf("CompressionRatio = %.1f, want 10.0", got)
	}
}

func TestAdmitReadmitsAfterWindow(t *testing.T) {
	tbl := newTestTable(t, 5*time.Minute)
	now := time.Now()
	tbl.nowFn = func() time.Time { return now }

	s := sig("svc", "latency_p95", nil)
	if tbl.Admit(s) == nil {
		t.Fatal("first occurrence must be admitted")
	}
	if tbl.Admit(s) != nil {
		t.Fatal("duplicate must be suppressed")
	}

	now = now.Add(5*time.Minute + time.Second)
	if tbl.Admit(s) == nil {
		t.Fatal("fingerprint past window must be re-admitted")
	}
}

func TestVolatileLabelsIgnoredInFingerprint(t *testing.T) {
	tbl := newTestTable(t, 5*time.Minute)

	a := sig("svc", "error_rate", map[string]string{"pod_name": "svc-abc123", "route": "/checkout"})
	b := sig("svc", "error_rate", map[string]string{"pod_name": "svc-xyz789", "route": "/checkout"})

	if tbl.Fingerprint(a) != tbl.Fingerprint(b) {
		t.Fatal("pod_name is volatile and must not split fingerprints")
	}

	c := sig("svc", "error_rate", map[string]string{"pod_name": "svc-abc123", "route": "/cart"})
	if tbl.Fingerprint(a) == tbl.Fingerprint(c) {
		t.Fatal("route is stable and must split fingerprints")
	}
}

func TestCanonicalMetricName(t *testing.T) {
	tbl := newTestTable(t, 5*time.Minute)
	a := sig("svc", "Error_Rate", nil)
	b := sig("svc", " error_rate ", nil)
	if tbl.Fingerprint(a) != tbl.Fingerprint(b) {
		t.Fatal("metric name must be canonicalized")
	}
}

func TestDistinctServicesNotCollapsed(t *testing.T) {
	tbl := newTestTable(t, 5*time.Minute)
	if tbl.Admit(sig("svc-a", "error_rate", nil)) == nil {
		t.Fatal("svc-a must be admitted")
	}
	if tbl.Admit(sig("svc-b", "error_rate", nil)) == nil {
		t.Fatal("svc-b must be admitted")
	}
}

func TestBoundedByLRU(t *testing.T) {
	tbl, err := NewTable(5*time.Minute, 32, "")
	if err != nil {
		t.Fatal(err)
	}
	// Push far more distinct fingerprints than the table holds; this must
	// not grow unbounded and must keep admitting.
	for i := 0; i < 10_000; i++ {
		s := sig(fmt.Sprintf("svc-%d", i), "error_rate", nil)
		if tbl.Admit(s) == nil {
			t.Fatalf("distinct fingerprint %d unexpectedly suppressed", i)
		}
	}
	seen, admitted := tbl.Stats()
	if seen != 10_000 || admitted != 10_000 {
		t.Errorf("Stats = %d seen %d admitted", seen, admitted)
	}
}

func TestConcurrentAdmit(t *testing.T) {
	tbl := newTestTable(t, 5*time.Minute)
	done := make(chan int, 8)
	for w := 0; w < 8; w++ {
		go func() {
			n := 0
			for i := 0; i < 500; i++ {
				if tbl.Admit(sig("svc", "error_rate", nil)) != nil {
					n++
				}
			}
			done <- n
		}()
	}
	total := 0
	for w := 0; w < 8; w++ {
		total += <-done
	}
	if total != 1 {
		t.Fatalf("exactly one admission expected across workers, got %d", total)
	}
}
