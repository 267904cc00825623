package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RecordRunStarted()
	m.RecordFrame(640)
	m.RecordFrame(640)
	m.RecordBadRead()
	m.RecordTranscript(true)
	m.RecordTranscript(false)
	m.RecordTranscript(false)
	m.RecordError("transport")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"runs", testutil.ToFloat64(m.RunsStarted), 1},
		{"active", testutil.ToFloat64(m.Active), 1},
		{"frames", testutil.ToFloat64(m.FramesSent), 2},
		{"bytes", testutil.ToFloat64(m.BytesSent), 1280},
		{"bad reads", testutil.ToFloat64(m.BadReads), 1},
		{"final transcripts", testutil.ToFloat64(m.Transcripts.WithLabelValues("true")), 1},
		{"interim transcripts", testutil.ToFloat64(m.Transcripts.WithLabelValues("false")), 2},
		{"transport errors", testutil.ToFloat64(m.Errors.WithLabelValues("transport")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v want %v", tt.name, tt.got, tt.want)
		}
	}

	m.RecordRunStopped(3)
	if got := testutil.ToFloat64(m.Active); got != 0 {
		t.Errorf("active after stop: got %v", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordRunStarted()
	m.RecordFrame(10)
	m.RecordBadRead()
	m.RecordTranscript(true)
	m.RecordError("backend")
	m.RecordRunStopped(1)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestMetrics_InstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordFrame(1)
	if got := testutil.ToFloat64(b.FramesSent); got != 0 {
		t.Errorf("second instance saw %v frames", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordFrame(640)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "capture_bytes_sent_total 640") {
		t.Errorf("metrics output missing bytes counter:\n%s", body)
	}
}
