package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"home-control/internal/application"
	"home-control/internal/infra/metrics"
)

func TestCollector_StatusChanges(t *testing.T) {
	c := metrics.NewCollector()
	ctx := context.Background()

	c.StatusChanged(ctx, application.StatusChange{UserID: 3, Online: true, First: true})
	c.StatusChanged(ctx, application.StatusChange{UserID: 3, Online: false})

	got, err := testutil.GatherAndCount(c.Registry(), "home_control_home_online")
	if err != nil {
		t.Fatalf("gathering: %v", err)
	}
	if got != 1 {
		t.Errorf("home_online series: got %d, want 1", got)
	}

	expected := `
# HELP home_control_home_status_changes_total Home status transitions, by new status
# TYPE home_control_home_status_changes_total counter
home_control_home_status_changes_total{status="offline"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "home_control_home_status_changes_total"); err != nil {
		t.Error(err)
	}
}

func TestCollector_Counters(t *testing.T) {
	c := metrics.NewCollector()

	c.ProbeCompleted(true, 20*time.Millisecond)
	c.ProbeCompleted(false, 2*time.Second)
	c.ToggleCompleted(application.ToggleOK)
	c.AttributeHandled("get", true)
	c.AttributeHandled("delete", false)
	c.FirmwareStep(application.FirmwareStepPush, false)

	expected := `
# HELP home_control_attribute_requests_total Attribute protocol requests, by action and result
# TYPE home_control_attribute_requests_total counter
home_control_attribute_requests_total{action="get",result="ok"} 1
home_control_attribute_requests_total{action="invalid",result="error"} 1
# HELP home_control_device_probes_total Reachability probes sent to devices, by result
# TYPE home_control_device_probes_total counter
home_control_device_probes_total{result="offline"} 1
home_control_device_probes_total{result="online"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"home_control_attribute_requests_total", "home_control_device_probes_total"); err != nil {
		t.Error(err)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := metrics.NewCollector()
	c.ToggleCompleted(application.ToggleBusy)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `home_control_light_toggles_total{outcome="busy"} 1`) {
		t.Errorf("metrics output missing toggle counter:\n%s", body)
	}
}
