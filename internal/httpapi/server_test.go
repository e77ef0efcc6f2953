package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keyawins-art/Time-stamp/internal/session"
	"github.com/keyawins-art/Time-stamp/internal/tracker"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(s string) *fakeClock {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		panic(err)
	}
	return &fakeClock{now: t.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHandler(t *testing.T, clock *fakeClock) http.Handler {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	logger := log.New(io.Discard, "", 0)
	svc := tracker.New(logger, store, nil, tracker.WithClock(clock.Now))
	return NewHandler(logger, svc, 50*time.Millisecond)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestStartHeartbeatStopFlow(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	handler := newTestHandler(t, clock)

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":"device-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["message"] != "Session started" {
		t.Fatalf("unexpected start body: %v", body)
	}
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["session_number"] != float64(1) || data["status"] != "active" {
		t.Fatalf("unexpected session data: %v", data)
	}
	if data["session_start"] != "2026-03-01 10:00:00" {
		t.Fatalf("unexpected session_start: %v", data["session_start"])
	}
	if data["session_end"] != nil {
		t.Fatalf("expected null session_end, got %v", data["session_end"])
	}

	clock.Advance(30 * time.Second)
	rec = postJSON(t, handler, "/api/session/heartbeat", `{"session_id":"`+sessionID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["message"] != "Heartbeat updated" {
		t.Fatalf("unexpected heartbeat body: %v", body)
	}

	clock.Advance(60 * time.Second)
	rec = postJSON(t, handler, "/api/session/stop", `{"session_id":"`+sessionID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	data, _ = body["data"].(map[string]any)
	if data["runtime_seconds"] != float64(90) {
		t.Fatalf("expected runtime 90s, got %v", data["runtime_seconds"])
	}
	if data["runtime_formatted"] != "1m 30s" {
		t.Fatalf("unexpected runtime_formatted: %v", data["runtime_formatted"])
	}
	if data["status"] != "completed" {
		t.Fatalf("expected completed, got %v", data["status"])
	}
}

func TestStartValidation(t *testing.T) {
	handler := newTestHandler(t, newFakeClock("2026-03-01 10:00:00"))

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "device_id required" {
		t.Fatalf("unexpected error body: %v", body)
	}

	rec = postJSON(t, handler, "/api/session/start", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}

	rec = get(t, handler, "/api/session/start")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHeartbeatErrors(t *testing.T) {
	handler := newTestHandler(t, newFakeClock("2026-03-01 10:00:00"))

	rec := postJSON(t, handler, "/api/session/heartbeat", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "session_id required" {
		t.Fatalf("unexpected error body: %v", body)
	}

	rec = postJSON(t, handler, "/api/session/heartbeat", `{"session_id":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Session not found" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestDevicesRoster(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	handler := newTestHandler(t, clock)

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":"device-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: %d", rec.Code)
	}
	clock.Advance(60 * time.Second)

	rec = get(t, handler, "/api/devices")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("expected 1 device, got %v", body["count"])
	}
	devices, _ := body["devices"].([]any)
	device, _ := devices[0].(map[string]any)
	if device["device_id"] != "device-1" || device["status"] != "running" {
		t.Fatalf("unexpected device row: %v", device)
	}
	if device["today_runtime_seconds"] != float64(60) {
		t.Fatalf("expected 60s today, got %v", device["today_runtime_seconds"])
	}

	// Going silent past the stale window flips the device to stopped.
	clock.Advance(10 * time.Minute)
	rec = get(t, handler, "/api/devices")
	body = decodeBody(t, rec)
	devices, _ = body["devices"].([]any)
	device, _ = devices[0].(map[string]any)
	if device["status"] != "stopped" {
		t.Fatalf("expected stopped after stale window, got %v", device["status"])
	}
}

func TestDeviceSessionsAndDaily(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	handler := newTestHandler(t, clock)

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":"device-1"}`)
	body := decodeBody(t, rec)
	sessionID, _ := body["session_id"].(string)
	clock.Advance(2 * time.Minute)
	postJSON(t, handler, "/api/session/stop", `{"session_id":"`+sessionID+`"}`)

	rec = get(t, handler, "/api/device/device-1/sessions?date=2026-03-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions: %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("expected 1 session, got %v", body["count"])
	}

	rec = get(t, handler, "/api/device/device-1/daily/2026-03-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("daily: %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["total_runtime_seconds"] != float64(120) {
		t.Fatalf("expected 120s total, got %v", body["total_runtime_seconds"])
	}
	if body["total_runtime_formatted"] != "2m" {
		t.Fatalf("unexpected formatted total: %v", body["total_runtime_formatted"])
	}
}

func TestHistoryEndpoint(t *testing.T) {
	clock := newFakeClock("2026-03-02 08:00:00")
	handler := newTestHandler(t, clock)

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":"device-1"}`)
	body := decodeBody(t, rec)
	sessionID, _ := body["session_id"].(string)
	clock.Advance(time.Hour)
	postJSON(t, handler, "/api/session/stop", `{"session_id":"`+sessionID+`"}`)

	rec = get(t, handler, "/api/device/device-1/history?start_date=2026-03-01&end_date=2026-03-03")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	history, _ := body["history"].([]any)
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	middle, _ := history[1].(map[string]any)
	if middle["date"] != "2026-03-02" || middle["runtime_hours"] != float64(1) {
		t.Fatalf("unexpected middle entry: %v", middle)
	}

	rec = get(t, handler, "/api/device/device-1/history?start_date=bogus&end_date=2026-03-03")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", rec.Code)
	}
}

func TestExportCSV(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	handler := newTestHandler(t, clock)

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":"device-1"}`)
	body := decodeBody(t, rec)
	sessionID, _ := body["session_id"].(string)
	clock.Advance(90 * time.Second)
	postJSON(t, handler, "/api/session/stop", `{"session_id":"`+sessionID+`"}`)

	rec = get(t, handler, "/api/device/device-1/export")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "device-1_history.csv") {
		t.Fatalf("unexpected content disposition: %s", cd)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Date,Session ID,Start Time") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	row := lines[1]
	for _, want := range []string{"2026-03-01", "#1", "10:00:00", "10:01:30", "1m 30s", "Completed", "0h 1m"} {
		if !strings.Contains(row, want) {
			t.Fatalf("row missing %q: %s", want, row)
		}
	}
}

func TestNoCacheHeaderOnAllResponses(t *testing.T) {
	handler := newTestHandler(t, newFakeClock("2026-03-01 10:00:00"))

	rec := get(t, handler, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("expected no-store cache header, got %q", cc)
	}
}

func TestWatchStreamsRoster(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	handler := newTestHandler(t, clock)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	rec := postJSON(t, handler, "/api/session/start", `{"device_id":"device-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: %d", rec.Code)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial watch: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload struct {
		Devices []map[string]any `json:"devices"`
		Count   int              `json:"count"`
	}
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read roster: %v", err)
	}
	if payload.Count != 1 || len(payload.Devices) != 1 {
		t.Fatalf("unexpected roster: %+v", payload)
	}
	if payload.Devices[0]["device_id"] != "device-1" || payload.Devices[0]["status"] != "running" {
		t.Fatalf("unexpected device row: %v", payload.Devices[0])
	}

	// The ticker pushes again without any client input.
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read second roster: %v", err)
	}
}
