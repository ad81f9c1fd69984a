package metrics_test

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zsprackett/chargewatch/internal/metrics"
)

func TestSetConnectionState(t *testing.T) {
	all := []string{"idle", "open"}
	metrics.SetConnectionState("open", all)
	if got := testutil.ToFloat64(metrics.ConnectionState.WithLabelValues("open")); got != 1 {
		t.Errorf("open: got %v want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ConnectionState.WithLabelValues("idle")); got != 0 {
		t.Errorf("idle: got %v want 0", got)
	}
}

func TestObserveHeartbeat(t *testing.T) {
	before := testutil.ToFloat64(metrics.HeartbeatsSent.WithLabelValues("error"))
	metrics.ObserveHeartbeat(errors.New("broken pipe"))
	after := testutil.ToFloat64(metrics.HeartbeatsSent.WithLabelValues("error"))
	if after-before != 1 {
		t.Errorf("expected error counter to grow by 1, got %v", after-before)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	metrics.ObserveFrame("domain")
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "chargewatch_realtime_frames_total") {
		t.Error("expected frames counter in /metrics output")
	}
}
