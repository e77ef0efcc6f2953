package tracker

import (
	"context"
	"log"
	"time"

	"github.com/keyawins-art/Time-stamp/internal/metrics"
	"github.com/keyawins-art/Time-stamp/internal/session"
)

const (
	// DefaultStaleAfter is how long an active session may go without a
	// heartbeat before the reaper considers it abandoned.
	DefaultStaleAfter = 120 * time.Second
	// DefaultHistoryEpoch is the start of the default history range.
	DefaultHistoryEpoch = "2026-01-01"
)

// SessionLogger receives every closed session exactly once, immediately
// after the close commits. Failures must not fail the close.
type SessionLogger interface {
	Log(rec session.Record) error
}

// Service is the session lifecycle engine: it owns start/heartbeat/stop
// transitions, runs the staleness reaper ahead of reads, and computes
// aggregates. It keeps no per-request state; identity lives in the store.
type Service struct {
	logger       *log.Logger
	store        session.Store
	sessionLog   SessionLogger
	staleAfter   time.Duration
	historyEpoch string
	now          func() time.Time
}

type Option func(*Service)

func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithHistoryEpoch(date string) Option {
	return func(s *Service) {
		if date != "" {
			s.historyEpoch = date
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(logger *log.Logger, store session.Store, sessionLog SessionLogger, opts ...Option) *Service {
	s := &Service{
		logger:       logger,
		store:        store,
		sessionLog:   sessionLog,
		staleAfter:   DefaultStaleAfter,
		historyEpoch: DefaultHistoryEpoch,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates a new active session for the device. Any session the
// device still had active is force-closed first, at its last heartbeat: a
// new start means the old liveness information is already superseded.
func (s *Service) StartSession(ctx context.Context, deviceID string) (session.Record, error) {
	rec, err := s.store.StartSession(ctx, deviceID, s.now().UTC())
	if err != nil {
		return session.Record{}, err
	}
	metrics.SessionsStarted.Inc()
	s.logger.Printf("session started device=%s id=%s number=%d", rec.DeviceID, rec.ID, rec.DeviceSessionID)
	return rec, nil
}

func (s *Service) Heartbeat(ctx context.Context, sessionID string) error {
	if err := s.store.Heartbeat(ctx, sessionID, s.now().UTC()); err != nil {
		return err
	}
	metrics.Heartbeats.Inc()
	return nil
}

// StopSession closes the session at the current time and emits one line to
// the session log.
func (s *Service) StopSession(ctx context.Context, sessionID string) (session.Record, error) {
	rec, err := s.store.StopSession(ctx, sessionID, s.now().UTC())
	if err != nil {
		return session.Record{}, err
	}
	metrics.SessionsStopped.Inc()
	s.logger.Printf("session stopped device=%s id=%s runtime=%s", rec.DeviceID, rec.ID, FormatRuntime(rec.RuntimeSeconds))
	s.logClosed(rec)
	return rec, nil
}

// ReapStale closes every active session that missed heartbeats for longer
// than the stale timeout, at its last heartbeat. It runs synchronously at
// the head of each read path so staleness is never observable.
func (s *Service) ReapStale(ctx context.Context) error {
	now := s.now().UTC()
	closed, err := s.store.CloseStale(ctx, now.Add(-s.staleAfter))
	if err != nil {
		return err
	}
	for _, rec := range closed {
		metrics.SessionsReaped.Inc()
		s.logger.Printf("reaped stale session device=%s id=%s last heartbeat %s ago",
			rec.DeviceID, rec.ID, now.Sub(rec.LastHeartbeat).Truncate(time.Second))
		s.logClosed(rec)
	}
	return nil
}

// logClosed writes the closed session to the side-channel log. Failures are
// logged and swallowed: the session record's durability takes precedence.
func (s *Service) logClosed(rec session.Record) {
	if s.sessionLog == nil {
		return
	}
	if err := s.sessionLog.Log(rec); err != nil {
		s.logger.Printf("session log write failed id=%s: %v", rec.ID, err)
	}
}
