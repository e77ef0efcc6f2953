package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keyawins-art/Time-stamp/internal/ids"
)

// MemoryStore keeps sessions in process memory. It exists for tests and
// mirrors GormStore semantics, including per-device start atomicity.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Record
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Record)}
}

func (s *MemoryStore) StartSession(_ context.Context, deviceID string, now time.Time) (Record, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, fmt.Errorf("memory store is closed")
	}

	var maxOrdinal int64
	today := DateOf(now)
	for id, rec := range s.sessions {
		if rec.DeviceID != deviceID {
			continue
		}
		if rec.Status == StatusActive {
			s.sessions[id] = closeAt(rec, rec.LastHeartbeat)
		}
		if rec.Date == today && rec.DeviceSessionID > maxOrdinal {
			maxOrdinal = rec.DeviceSessionID
		}
	}

	rec := newRecord(ids.New(), deviceID, maxOrdinal+1, now)
	s.sessions[rec.ID] = rec
	return rec, nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.LastHeartbeat = now
	s.sessions[sessionID] = rec
	return nil
}

func (s *MemoryStore) StopSession(_ context.Context, sessionID string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, fmt.Errorf("memory store is closed")
	}

	rec, ok := s.sessions[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	closed := closeAt(rec, now)
	s.sessions[sessionID] = closed
	return closed, nil
}

func (s *MemoryStore) CloseStale(_ context.Context, cutoff time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	var out []Record
	for id, rec := range s.sessions {
		if rec.Status != StatusActive || !rec.LastHeartbeat.Before(cutoff) {
			continue
		}
		closed := closeAt(rec, rec.LastHeartbeat)
		s.sessions[id] = closed
		out = append(out, closed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionStart.Before(out[j].SessionStart) })
	return out, nil
}

func (s *MemoryStore) DeviceIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	seen := make(map[string]struct{})
	var out []string
	for _, rec := range s.sessions {
		if _, ok := seen[rec.DeviceID]; ok {
			continue
		}
		seen[rec.DeviceID] = struct{}{}
		out = append(out, rec.DeviceID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ActiveSession(_ context.Context, deviceID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, fmt.Errorf("memory store is closed")
	}

	for _, rec := range s.sessions {
		if rec.DeviceID == deviceID && rec.Status == StatusActive {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) LatestHeartbeat(_ context.Context, deviceID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, fmt.Errorf("memory store is closed")
	}

	var latest time.Time
	found := false
	for _, rec := range s.sessions {
		if rec.DeviceID != deviceID {
			continue
		}
		found = true
		if rec.LastHeartbeat.After(latest) {
			latest = rec.LastHeartbeat
		}
	}
	if !found {
		return time.Time{}, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) Sessions(_ context.Context, deviceID, date string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	out := s.collect(func(rec Record) bool {
		return rec.DeviceID == deviceID && (date == "" || rec.Date == date)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SessionStart.After(out[j].SessionStart) })
	return out, nil
}

func (s *MemoryStore) SessionsInRange(_ context.Context, deviceID, startDate, endDate string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	out := s.collect(func(rec Record) bool {
		return rec.DeviceID == deviceID && rec.Date >= startDate && rec.Date <= endDate
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].SessionStart.Before(out[j].SessionStart)
	})
	return out, nil
}

func (s *MemoryStore) SessionsForExport(_ context.Context, deviceID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	out := s.collect(func(rec Record) bool { return rec.DeviceID == deviceID })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].SessionStart.After(out[j].SessionStart)
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// collect assumes the caller holds s.mu.
func (s *MemoryStore) collect(match func(Record) bool) []Record {
	out := []Record{}
	for _, rec := range s.sessions {
		if match(rec) {
			out = append(out, rec)
		}
	}
	return out
}
