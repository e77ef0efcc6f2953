package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyawins-art/Time-stamp/internal/session"
	"github.com/keyawins-art/Time-stamp/internal/tracker"
)

const (
	timeLayout          = "2006-01-02 15:04:05"
	maxRequestBodyBytes = 1 << 20
)

type server struct {
	logger        *log.Logger
	tracker       *tracker.Service
	watchInterval time.Duration
}

func NewServer(logger *log.Logger, addr string, svc *tracker.Service, watchInterval time.Duration) *http.Server {
	if watchInterval <= 0 {
		watchInterval = 5 * time.Second
	}
	h := &server{
		logger:        logger,
		tracker:       svc,
		watchInterval: watchInterval,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/session/start", h.handleStart)
	mux.HandleFunc("/api/session/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("/api/session/stop", h.handleStop)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/device/{device_id}/sessions", h.handleDeviceSessions)
	mux.HandleFunc("/api/device/{device_id}/daily/{date}", h.handleDailySummary)
	mux.HandleFunc("/api/device/{device_id}/history", h.handleHistory)
	mux.HandleFunc("/api/device/{device_id}/export", h.handleExport)
	mux.HandleFunc("/api/watch", h.handleWatch)
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           noCache(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewHandler exposes the routed handler without a server, for tests.
func NewHandler(logger *log.Logger, svc *tracker.Service, watchInterval time.Duration) http.Handler {
	return NewServer(logger, "", svc, watchInterval).Handler
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "device_id required")
		return
	}

	rec, err := s.tracker.StartSession(r.Context(), strings.TrimSpace(req.DeviceID))
	if err != nil {
		s.writeStoreError(w, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"message":    "Session started",
		"session_id": rec.ID,
		"data":       sessionBody(rec),
	})
}

func (s *server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionIDFromBody(w, r)
	if !ok {
		return
	}

	if err := s.tracker.Heartbeat(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.writeStoreError(w, "heartbeat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Heartbeat updated",
	})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionIDFromBody(w, r)
	if !ok {
		return
	}

	rec, err := s.tracker.StopSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.writeStoreError(w, "stop session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session stopped",
		"data":    sessionBody(rec),
	})
}

func (s *server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := s.deviceListBody(r.Context())
	if err != nil {
		s.writeStoreError(w, "list devices", err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handleDeviceSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deviceID := r.PathValue("device_id")
	date := strings.TrimSpace(r.URL.Query().Get("date"))

	sessions, err := s.tracker.DeviceSessions(r.Context(), deviceID, date)
	if err != nil {
		s.writeStoreError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"device_id": deviceID,
		"sessions":  sessionBodies(sessions),
		"count":     len(sessions),
	})
}

func (s *server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deviceID := r.PathValue("device_id")
	date := r.PathValue("date")

	summary, err := s.tracker.DailySummary(r.Context(), deviceID, date)
	if err != nil {
		s.writeStoreError(w, "daily summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                 true,
		"device_id":               summary.DeviceID,
		"date":                    summary.Date,
		"total_runtime_seconds":   summary.TotalRuntimeSeconds,
		"total_runtime_formatted": tracker.FormatTotal(summary.TotalRuntimeSeconds),
		"session_count":           len(summary.Sessions),
		"sessions":                sessionBodies(summary.Sessions),
	})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deviceID := r.PathValue("device_id")
	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))

	entries, err := s.tracker.History(r.Context(), deviceID, startDate, endDate)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeStoreError(w, "history", err)
		return
	}

	history := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		history = append(history, map[string]any{
			"date":            entry.Date,
			"runtime_seconds": entry.RuntimeSeconds,
			"runtime_hours":   entry.RuntimeHours,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"device_id": deviceID,
		"history":   history,
	})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deviceID := r.PathValue("device_id")
	rows, err := s.tracker.ExportRows(r.Context(), deviceID)
	if err != nil {
		s.writeStoreError(w, "export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_history.csv", deviceID))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Date", "Session ID", "Start Time", "End Time", "Runtime", "Status", "Day Total (HH:MM)"})
	for _, row := range rows {
		rec := row.Session
		endTime := "Active"
		if !rec.SessionEnd.IsZero() {
			endTime = rec.SessionEnd.UTC().Format("15:04:05")
		}
		_ = cw.Write([]string{
			rec.Date,
			fmt.Sprintf("#%d", rec.DeviceSessionID),
			rec.SessionStart.UTC().Format("15:04:05"),
			endTime,
			tracker.FormatRuntime(rec.RuntimeSeconds),
			capitalize(string(rec.Status)),
			fmt.Sprintf("%dh %dm", row.DayTotalSeconds/3600, (row.DayTotalSeconds%3600)/60),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Printf("export write failed device=%s: %v", deviceID, err)
	}
}

func (s *server) sessionIDFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return "", false
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return "", false
	}
	return strings.TrimSpace(req.SessionID), true
}

func (s *server) writeStoreError(w http.ResponseWriter, op string, err error) {
	s.logger.Printf("%s failed: %v", op, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

type sessionJSON struct {
	ID               string  `json:"id"`
	SessionNumber    int64   `json:"session_number"`
	DeviceID         string  `json:"device_id"`
	SessionStart     string  `json:"session_start"`
	LastHeartbeat    string  `json:"last_heartbeat"`
	SessionEnd       *string `json:"session_end"`
	RuntimeSeconds   int64   `json:"runtime_seconds"`
	RuntimeFormatted string  `json:"runtime_formatted"`
	Date             string  `json:"date"`
	Status           string  `json:"status"`
}

func sessionBody(rec session.Record) sessionJSON {
	body := sessionJSON{
		ID:               rec.ID,
		SessionNumber:    rec.DeviceSessionID,
		DeviceID:         rec.DeviceID,
		SessionStart:     rec.SessionStart.UTC().Format(timeLayout),
		LastHeartbeat:    rec.LastHeartbeat.UTC().Format(timeLayout),
		RuntimeSeconds:   rec.RuntimeSeconds,
		RuntimeFormatted: tracker.FormatRuntime(rec.RuntimeSeconds),
		Date:             rec.Date,
		Status:           string(rec.Status),
	}
	if !rec.SessionEnd.IsZero() {
		end := rec.SessionEnd.UTC().Format(timeLayout)
		body.SessionEnd = &end
	}
	return body
}

func sessionBodies(recs []session.Record) []sessionJSON {
	out := make([]sessionJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, sessionBody(rec))
	}
	return out
}

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing content")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// noCache keeps dashboards from ever seeing stale roster data.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "-1")
		next.ServeHTTP(w, r)
	})
}
