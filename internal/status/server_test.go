package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/models"
	"github.com/rewired-gh/buybackd/internal/scheduler"
)

type fakeJobs []scheduler.JobStatus

func (f fakeJobs) Status() []scheduler.JobStatus { return f }

type fakeAssets struct {
	assets []models.Asset
	err    error
}

func (f fakeAssets) ListAssets(context.Context) ([]models.Asset, error) {
	return f.assets, f.err
}

func (f fakeAssets) CountAssets(context.Context) (int, error) {
	return len(f.assets), f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	stored := fakeAssets{assets: []models.Asset{{ItemID: 1}, {ItemID: 2}, {ItemID: 3}}}
	tests := []struct {
		name       string
		jobs       fakeJobs
		assets     fakeAssets
		wantCode   int
		wantText   string
		wantStored int
	}{
		{"healthy", fakeJobs{{Name: "assets"}, {Name: "rates"}}, stored, http.StatusOK, "ok", 3},
		{"failing job", fakeJobs{{Name: "assets", ConsecutiveFailures: 2}}, stored, http.StatusServiceUnavailable, "degraded", 3},
		{"store error", fakeJobs{{Name: "assets"}}, fakeAssets{err: errors.New("database is locked")}, http.StatusServiceUnavailable, "degraded", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, NewRouter(tt.jobs, tt.assets, nil), "/health")
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status       string                `json:"status"`
				Jobs         []scheduler.JobStatus `json:"jobs"`
				AssetsStored int                   `json:"assets_stored"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantText || len(body.Jobs) != len(tt.jobs) || body.AssetsStored != tt.wantStored {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestAssetsOverview(t *testing.T) {
	assets := fakeAssets{assets: []models.Asset{
		{ItemID: 1, TypeName: "Compressed Arkonor", Quantity: 2, Price: 100, LocationName: "Jita IV"},
		{ItemID: 2, TypeName: "Tritanium", Quantity: 10, Price: 4, LocationName: "Amarr VIII"},
	}}
	rec := get(t, NewRouter(fakeJobs{}, assets, nil), "/assets/overview")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body struct {
		Assets   int `json:"assets"`
		Overview struct {
			OreValue   float64 `json:"ore_value"`
			OtherValue float64 `json:"other_value"`
		} `json:"overview"`
		Systems []struct {
			System string `json:"system"`
		} `json:"systems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Assets != 2 || body.Overview.OreValue != 200 || body.Overview.OtherValue != 40 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Systems) != 2 || body.Systems[0].System != "Jita" {
		t.Errorf("systems = %+v", body.Systems)
	}

	rec = get(t, NewRouter(fakeJobs{}, fakeAssets{err: errors.New("disk I/O error")}, nil), "/assets/overview")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code on store error = %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.NewRegistry()
	m.SetAssetsStored(7)

	rec := get(t, NewRouter(fakeJobs{}, fakeAssets{}, m.Handler()), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "buyback_assets_stored 7") {
		t.Errorf("metrics response %d:\n%s", rec.Code, rec.Body.String())
	}

	if rec := get(t, NewRouter(fakeJobs{}, fakeAssets{}, nil), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rec.Code)
	}
}
