package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreRequest(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{"success", 200, "200"},
		{"conflict", 409, "409"},
		{"transport failure", 0, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := StoreRequestsTotal.WithLabelValues("rest", "select", "likes", tt.label)
			before := testutil.ToFloat64(c)

			RecordStoreRequest("rest", "select", "likes", tt.status, 20*time.Millisecond)

			if after := testutil.ToFloat64(c); after != before+1 {
				t.Errorf("counter = %v, want %v", after, before+1)
			}
		})
	}
}

func TestRecordUpload(t *testing.T) {
	success := testutil.ToFloat64(UploadsTotal.WithLabelValues("success"))
	failure := testutil.ToFloat64(UploadsTotal.WithLabelValues("failure"))

	RecordUpload(true, 2048)
	RecordUpload(false, 0)

	if got := testutil.ToFloat64(UploadsTotal.WithLabelValues("success")); got != success+1 {
		t.Errorf("success counter = %v, want %v", got, success+1)
	}
	if got := testutil.ToFloat64(UploadsTotal.WithLabelValues("failure")); got != failure+1 {
		t.Errorf("failure counter = %v, want %v", got, failure+1)
	}
}

func TestUpdateDBConnectionStats(t *testing.T) {
	UpdateDBConnectionStats(3, 7)

	if got := testutil.ToFloat64(DBConnectionsActive); got != 3 {
		t.Errorf("active = %v, want 3", got)
	}
	if got := testutil.ToFloat64(DBConnectionsIdle); got != 7 {
		t.Errorf("idle = %v, want 7", got)
	}
}

func TestRecordHTTPRequestAndRealtime(t *testing.T) {
	c := HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")
	before := testutil.ToFloat64(c)
	RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("http counter = %v, want %v", got, before+1)
	}

	rc := RealtimeEventsTotal.WithLabelValues("notifications", "INSERT")
	rbefore := testutil.ToFloat64(rc)
	RecordRealtimeEvent("notifications", "INSERT")
	if got := testutil.ToFloat64(rc); got != rbefore+1 {
		t.Errorf("realtime counter = %v, want %v", got, rbefore+1)
	}
}
