package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthReturnsOK(t *testing.T) {
	r := NewRouter(Deps{Symbol: "tBTCUSD", TF: "1m", Started: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusReportsSymbolTFAndClientCount(t *testing.T) {
	r := NewRouter(Deps{
		Symbol:      "tBTCUSD",
		TF:          "1m",
		Started:     time.Now().Add(-5 * time.Second),
		ClientCount: func() int { return 3 },
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["symbol"] != "tBTCUSD" || body["tf"] != "1m" {
		t.Errorf("unexpected symbol/tf: %+v", body)
	}
	if peers, ok := body["dashboard_peers"].(float64); !ok || peers != 3 {
		t.Errorf("expected dashboard_peers=3, got %+v", body["dashboard_peers"])
	}
}

func TestStatusWithNilClientCountDefaultsToZero(t *testing.T) {
	r := NewRouter(Deps{Symbol: "tBTCUSD", TF: "1m", Started: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if peers, ok := body["dashboard_peers"].(float64); !ok || peers != 0 {
		t.Errorf("expected dashboard_peers=0, got %+v", body["dashboard_peers"])
	}
}

func TestPauseResumeStopCallWiredControls(t *testing.T) {
	var paused, resumed, stopped bool
	r := NewRouter(Deps{
		Symbol:  "tBTCUSD",
		TF:      "1m",
		Started: time.Now(),
		Controls: Controls{
			Pause:  func() { paused = true },
			Resume: func(ctx context.Context) { resumed = true },
			Stop:   func() error { stopped = true; return nil },
		},
	})

	for _, path := range []string{"/pause", "/resume", "/stop"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	if !paused || !resumed || !stopped {
		t.Errorf("expected all controls invoked, got paused=%v resumed=%v stopped=%v", paused, resumed, stopped)
	}
}

func TestUnwiredControlsReturn501(t *testing.T) {
	r := NewRouter(Deps{Symbol: "tBTCUSD", TF: "1m", Started: time.Now()})

	for _, path := range []string{"/pause", "/resume", "/stop"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s: expected 501, got %d", path, rec.Code)
		}
	}
}

func TestStopControlErrorReturns500(t *testing.T) {
	r := NewRouter(Deps{
		Symbol:  "tBTCUSD",
		TF:      "1m",
		Started: time.Now(),
		Controls: Controls{
			Stop: func() error { return errors.New("stop failed") },
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStatusReportsPausedState(t *testing.T) {
	r := NewRouter(Deps{
		Symbol:  "tBTCUSD",
		TF:      "1m",
		Started: time.Now(),
		Paused:  func() bool { return true },
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if paused, ok := body["paused"].(bool); !ok || !paused {
		t.Errorf("expected paused=true, got %+v", body["paused"])
	}
}
