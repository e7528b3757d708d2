package observability

import (
	"testing"
	"time"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("worker-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordDispatch("calc", "Add", "completed", 3*time.Millisecond)
	RecordStreamFailure("calc")
	RecordRespondError("calc")
	RecordTermination("calc", "stop")

	logs.Logf("observability/metrics: registration idempotent and recording paths executed")
}

func TestRecordDispatchCountsByOutcome(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(workerRequests.WithLabelValues("metrics-test", "Divide", "failed"))
	RecordDispatch("metrics-test", "Divide", "failed", time.Millisecond)
	RecordDispatch("metrics-test", "Divide", "failed", time.Millisecond)
	after := testutil.ToFloat64(workerRequests.WithLabelValues("metrics-test", "Divide", "failed"))
	if after-before != 2 {
		t.Fatalf("expected 2 failed dispatches recorded, got %v", after-before)
	}
}
