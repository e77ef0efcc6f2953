package session

import "time"

// DateLayout is the calendar-day partition key format.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Record is one continuous device-active interval. A record is created
// active, extended by heartbeats, and closed exactly once by an explicit
// stop, a stale-session reap, or a superseding start.
type Record struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"device_id"`
	DeviceSessionID int64     `json:"session_number"`
	SessionStart    time.Time `json:"session_start"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	SessionEnd      time.Time `json:"session_end,omitempty"`
	RuntimeSeconds  int64     `json:"runtime_seconds"`
	Date            string    `json:"date"`
	Status          Status    `json:"status"`
}

func (r Record) Active() bool {
	return r.Status == StatusActive
}

// EffectiveRuntime is the record's contribution to aggregates: the stored
// runtime once completed, extrapolated to now while still active.
func (r Record) EffectiveRuntime(now time.Time) int64 {
	if r.Status == StatusCompleted {
		return r.RuntimeSeconds
	}
	return durationSeconds(r.SessionStart, now)
}

// DateOf returns the calendar day of t in UTC.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func newRecord(id, deviceID string, ordinal int64, now time.Time) Record {
	return Record{
		ID:              id,
		DeviceID:        deviceID,
		DeviceSessionID: ordinal,
		SessionStart:    now,
		LastHeartbeat:   now,
		Date:            DateOf(now),
		Status:          StatusActive,
	}
}

// closeAt finalizes a record at end. The end is clamped so session_end never
// precedes session_start, and last_heartbeat never moves backwards.
func closeAt(r Record, end time.Time) Record {
	if end.Before(r.SessionStart) {
		end = r.SessionStart
	}
	r.SessionEnd = end
	r.RuntimeSeconds = durationSeconds(r.SessionStart, end)
	if end.After(r.LastHeartbeat) {
		r.LastHeartbeat = end
	}
	r.Status = StatusCompleted
	return r
}

func durationSeconds(start, end time.Time) int64 {
	if end.Before(start) {
		return 0
	}
	return int64(end.Sub(start) / time.Second)
}
