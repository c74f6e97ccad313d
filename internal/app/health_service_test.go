package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
	"github.com/vanviegen/lightlynx-sub001/internal/db"
	"github.com/vanviegen/lightlynx-sub001/internal/engine"
	"github.com/vanviegen/lightlynx-sub001/internal/ledger"
)

func get(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: invalid JSON %q: %v", target, rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestHealthService_HealthAndReady(t *testing.T) {
	ready := false
	s := NewHealthService(&config.Config{}, func() bool { return ready }, nil, nil)
	h := s.Handler()

	if code, body := get(t, h, "/health"); code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("/health = %d %v", code, body)
	}
	if code, _ := get(t, h, "/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("/ready before ready = %d, want 503", code)
	}

	ready = true
	if code, body := get(t, h, "/ready"); code != http.StatusOK || body["status"] != "ready" {
		t.Errorf("/ready = %d %v", code, body)
	}
}

func TestHealthService_Status(t *testing.T) {
	status := func(ctx context.Context) (engine.Status, error) {
		return engine.Status{Ready: true, Groups: 3, IdleTimers: 1}, nil
	}
	h := NewHealthService(&config.Config{}, nil, status, nil).Handler()

	code, body := get(t, h, "/status")
	if code != http.StatusOK {
		t.Fatalf("/status = %d, want 200", code)
	}
	if body["ready"] != true || body["groups"] != float64(3) || body["idle_timers"] != float64(1) {
		t.Errorf("/status body = %v", body)
	}

	stopped := func(ctx context.Context) (engine.Status, error) {
		return engine.Status{}, engine.ErrStopped
	}
	h = NewHealthService(&config.Config{}, nil, stopped, nil).Handler()
	if code, body := get(t, h, "/status"); code != http.StatusServiceUnavailable || body["error"] != engine.ErrStopped.Error() {
		t.Errorf("/status stopped = %d %v", code, body)
	}
}

func TestHealthService_Ledger(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "health.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	l := ledger.New(database.DB)

	ctx := context.Background()
	for _, topic := range []string{"zigbee2mqtt/a/set", "zigbee2mqtt/b/set"} {
		if err := l.Append(ctx, ledger.EventCommandSent, "engine", map[string]any{"topic": topic}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	h := NewHealthService(&config.Config{}, nil, nil, l).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/ledger = %d, want 200", rec.Code)
	}
	var entries []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0]["event_type"] != string(ledger.EventCommandSent) {
		t.Errorf("event_type = %v", entries[0]["event_type"])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger?type=catalog_rebuilt", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("/ledger?type=catalog_rebuilt = %d %q, want empty list", rec.Code, rec.Body.String())
	}

	if code, _ := get(t, h, "/ledger?limit=abc"); code != http.StatusBadRequest {
		t.Errorf("/ledger?limit=abc = %d, want 400", code)
	}
}

func TestHealthService_LedgerDisabled(t *testing.T) {
	h := NewHealthService(&config.Config{}, nil, nil, nil).Handler()
	code, body := get(t, h, "/ledger")
	if code != http.StatusNotFound {
		t.Errorf("/ledger = %d, want 404", code)
	}
	if body["error"] == nil {
		t.Errorf("body = %v, want error", body)
	}
}

func TestResolveLocation_Coordinates(t *testing.T) {
	loc, err := resolveLocation(config.GeoConfig{Name: "Home", Lat: 52.37, Lon: 4.89}, nil)
	if err != nil {
		t.Fatalf("resolveLocation() error = %v", err)
	}
	if loc.Name != "Home" || loc.Latitude != 52.37 || loc.Longitude != 4.89 {
		t.Errorf("loc = %+v", loc)
	}
}
