package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keyawins-art/Time-stamp/internal/metrics"
	"github.com/keyawins-art/Time-stamp/internal/tracker"
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameHostOrigin,
}

// rosterPayload is one push to a watch subscriber.
type rosterPayload struct {
	Timestamp string       `json:"timestamp"`
	Devices   []deviceJSON `json:"devices"`
	Count     int          `json:"count"`
}

type deviceJSON struct {
	DeviceID              string  `json:"device_id"`
	Status                string  `json:"status"`
	TodayRuntimeSeconds   int64   `json:"today_runtime_seconds"`
	TodayRuntimeFormatted string  `json:"today_runtime_formatted"`
	SessionCountToday     int     `json:"session_count_today"`
	LastActive            *string `json:"last_active"`
}

// handleWatch upgrades to a websocket and streams the device roster on
// connect and every watch interval until the client hangs up.
func (s *server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("watch upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	metrics.ActiveWatchers.Inc()
	defer metrics.ActiveWatchers.Dec()

	// Clients never send data frames; the read loop only notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	for {
		if err := s.pushRoster(conn, r); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *server) pushRoster(conn *websocket.Conn, r *http.Request) error {
	summaries, err := s.tracker.Devices(r.Context())
	if err != nil {
		s.logger.Printf("watch roster failed: %v", err)
		return err
	}

	payload := rosterPayload{
		Timestamp: time.Now().UTC().Format(timeLayout),
		Devices:   deviceBodies(summaries),
		Count:     len(summaries),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(payload)
}

func (s *server) deviceListBody(ctx context.Context) (map[string]any, error) {
	summaries, err := s.tracker.Devices(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"devices": deviceBodies(summaries),
		"count":   len(summaries),
	}, nil
}

func deviceBodies(summaries []tracker.DeviceSummary) []deviceJSON {
	out := make([]deviceJSON, 0, len(summaries))
	for _, d := range summaries {
		status := "stopped"
		if d.Running {
			status = "running"
		}
		body := deviceJSON{
			DeviceID:              d.DeviceID,
			Status:                status,
			TodayRuntimeSeconds:   d.TodayRuntimeSeconds,
			TodayRuntimeFormatted: tracker.FormatTotal(d.TodayRuntimeSeconds),
			SessionCountToday:     d.SessionCountToday,
		}
		if !d.LastActive.IsZero() {
			last := d.LastActive.UTC().Format(timeLayout)
			body.LastActive = &last
		}
		out = append(out, body)
	}
	return out
}

func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
