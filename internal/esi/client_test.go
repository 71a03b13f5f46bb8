package esi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() ClientConfig {
	return ClientConfig{Timeout: 5 * time.Second, MaxRetries: 0, UserAgent: "buybackd-test"}
}

func TestListAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/corporations/98000001/assets/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `[{"item_id":1,"type_id":34,"quantity":500,"location_id":60003760,"location_flag":"Hangar","location_type":"station","is_singleton":false},
				{"item_id":2,"type_id":3297,"quantity":1,"location_id":1,"location_flag":"Cargo","location_type":"item","is_singleton":true}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"Requested page does not exist!"}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 98000001, testConfig())

	assets, err := c.ListAssets(context.Background(), "tok", 1)
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("len = %d, want 2", len(assets))
	}
	if assets[0].TypeID != 34 || assets[0].Quantity != 500 || assets[0].LocationID != 60003760 {
		t.Errorf("asset[0] = %+v", assets[0])
	}
	if assets[1].LocationFlag != "Cargo" {
		t.Errorf("asset[1].LocationFlag = %q", assets[1].LocationFlag)
	}

	if _, err := c.ListAssets(context.Background(), "tok", 2); !errors.Is(err, ErrNoPage) {
		t.Errorf("page 2 error = %v, want ErrNoPage", err)
	}
}

func TestListAssets_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, testConfig())
	_, err := c.ListAssets(context.Background(), "tok", 1)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("error = %v, want StatusError 502", err)
	}
	if errors.Is(err, ErrNoPage) {
		t.Error("server error must not look like the end of pagination")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"name":"Jita IV - Moon 4 - Caldari Navy Assembly Plant"}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxRetries = 3
	cfg.RetryWait = time.Millisecond
	c := NewClient(srv.URL, 1, cfg)

	name, err := c.StationName(context.Background(), 60003760)
	if err != nil {
		t.Fatalf("StationName() error = %v", err)
	}
	if name != "Jita IV - Moon 4 - Caldari Navy Assembly Plant" {
		t.Errorf("name = %q", name)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestStationAndStructureNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/universe/stations/60003760/":
			if r.Header.Get("Authorization") != "" {
				t.Error("station lookup must be unauthenticated")
			}
			fmt.Fprint(w, `{"name":"Jita IV - Moon 4 - Caldari Navy Assembly Plant","system_id":30000142}`)
		case "/universe/structures/1022734985679/":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, `{"name":"68FT-6 - Mothership Bellicose","solar_system_id":30000001}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, testConfig())
	ctx := context.Background()

	if name, err := c.StationName(ctx, 60003760); err != nil || name != "Jita IV - Moon 4 - Caldari Navy Assembly Plant" {
		t.Errorf("StationName() = %q, %v", name, err)
	}
	if name, err := c.StructureName(ctx, 1022734985679, "tok"); err != nil || name != "68FT-6 - Mothership Bellicose" {
		t.Errorf("StructureName() = %q, %v", name, err)
	}
	if _, err := c.StructureName(ctx, 1022734985679, "bad"); err == nil {
		t.Error("expected error for forbidden structure")
	}
	if _, err := c.StationName(ctx, 60000001); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown station error = %v, want ErrNotFound", err)
	}
}

func TestTypeInfoMemoized(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/universe/types/28367/":
			fmt.Fprint(w, `{"name":"Compressed Arkonor","volume":3.08,"packaged_volume":0.16}`)
		case "/universe/types/34/":
			fmt.Fprint(w, `{"name":"Tritanium","volume":0.01}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := c.TypeInfo(ctx, 28367)
		if err != nil {
			t.Fatalf("TypeInfo() error = %v", err)
		}
		if info.Name != "Compressed Arkonor" || info.Volume != 0.16 {
			t.Errorf("TypeInfo() = %+v", info)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	name, err := c.TypeName(ctx, 34)
	if err != nil || name != "Tritanium" {
		t.Errorf("TypeName(34) = %q, %v", name, err)
	}
	if info, _ := c.TypeInfo(ctx, 34); info.Volume != 0.01 {
		t.Errorf("volume without packaged_volume = %f, want 0.01", info.Volume)
	}
	if _, err := c.TypeInfo(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown type error = %v, want ErrNotFound", err)
	}
}
