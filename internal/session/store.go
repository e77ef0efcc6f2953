package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Store is the single source of truth for session records. Mutating
// operations take the caller's clock so the lifecycle engine stays
// deterministic under test.
type Store interface {
	// StartSession closes any active session for the device at its last
	// heartbeat, assigns the next per-day ordinal, and creates a new active
	// session. The whole sequence is atomic with respect to other calls for
	// the same device.
	StartSession(ctx context.Context, deviceID string, now time.Time) (Record, error)
	// Heartbeat moves last_heartbeat forward for the session, whatever its
	// status. Returns ErrNotFound for an unknown id.
	Heartbeat(ctx context.Context, sessionID string, now time.Time) error
	// StopSession closes the session at now and returns the closed record.
	// A re-stop overwrites the previous end time.
	StopSession(ctx context.Context, sessionID string, now time.Time) (Record, error)
	// CloseStale closes every active session whose last heartbeat is before
	// cutoff, at that last heartbeat, and returns the closed records. The
	// batch commits atomically.
	CloseStale(ctx context.Context, cutoff time.Time) ([]Record, error)

	DeviceIDs(ctx context.Context) ([]string, error)
	// ActiveSession returns the device's active session, or ErrNotFound.
	ActiveSession(ctx context.Context, deviceID string) (Record, error)
	// LatestHeartbeat returns the most recent last_heartbeat across all of
	// the device's sessions, or ErrNotFound when the device has none.
	LatestHeartbeat(ctx context.Context, deviceID string) (time.Time, error)
	// Sessions lists a device's sessions ordered by session_start
	// descending, optionally filtered to one calendar date.
	Sessions(ctx context.Context, deviceID, date string) ([]Record, error)
	// SessionsInRange lists a device's sessions with startDate <= date <=
	// endDate, ordered by date then session_start ascending.
	SessionsInRange(ctx context.Context, deviceID, startDate, endDate string) ([]Record, error)
	// SessionsForExport lists all of a device's sessions ordered by date
	// descending then session_start descending.
	SessionsForExport(ctx context.Context, deviceID string) ([]Record, error)

	Close() error
}

func validateDeviceID(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("device_id is required")
	}
	return nil
}
