package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveJob("assets", time.Second, nil)
	r.SkipJob("assets")
	r.SetAssetsStored(3)
	r.LocationLookup("space")
	r.AppraisalRequest("success")
	r.RateUpdated()
	r.RateSkipped()
	r.ContractValued("valued")
}

func TestObserveJob(t *testing.T) {
	r := NewRegistry()
	r.ObserveJob("rates", 2*time.Second, nil)
	r.ObserveJob("rates", time.Second, errors.New("boom"))
	r.ObserveJob("rates", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(r.JobRuns.WithLabelValues("rates", "success")); got != 1 {
		t.Errorf("success runs = %f, want 1", got)
	}
	if got := testutil.ToFloat64(r.JobRuns.WithLabelValues("rates", "failure")); got != 2 {
		t.Errorf("failure runs = %f, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.SetAssetsStored(250)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "buyback_assets_stored 250") {
		t.Errorf("metrics output missing gauge:\n%s", body)
	}
}
