package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/keyawins-art/Time-stamp/internal/session"
)

// ErrInvalidRange marks a malformed or inverted history date range.
var ErrInvalidRange = errors.New("invalid date range")

// DeviceSummary is one roster row: today's effective runtime for a device
// plus its liveness.
type DeviceSummary struct {
	DeviceID            string
	Running             bool
	TodayRuntimeSeconds int64
	SessionCountToday   int
	LastActive          time.Time
}

type DailySummary struct {
	DeviceID            string
	Date                string
	TotalRuntimeSeconds int64
	Sessions            []session.Record
}

type HistoryEntry struct {
	Date           string
	RuntimeSeconds int64
	RuntimeHours   float64
}

// ExportRow pairs a session with its day's extrapolated total.
type ExportRow struct {
	Session         session.Record
	DayTotalSeconds int64
}

// Devices returns the roster with today's stats, running devices first then
// alphabetical. A reap pass runs first so liveness is accurate.
func (s *Service) Devices(ctx context.Context) ([]DeviceSummary, error) {
	if err := s.ReapStale(ctx); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := session.DateOf(now)
	deviceIDs, err := s.store.DeviceIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceSummary, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		todaySessions, err := s.store.Sessions(ctx, deviceID, today)
		if err != nil {
			return nil, err
		}

		summary := DeviceSummary{
			DeviceID:          deviceID,
			SessionCountToday: len(todaySessions),
		}
		for _, rec := range todaySessions {
			summary.TodayRuntimeSeconds += rec.EffectiveRuntime(now)
		}

		active, err := s.store.ActiveSession(ctx, deviceID)
		switch {
		case err == nil:
			summary.Running = true
			summary.LastActive = active.LastHeartbeat
		case errors.Is(err, session.ErrNotFound):
			last, err := s.store.LatestHeartbeat(ctx, deviceID)
			if err != nil && !errors.Is(err, session.ErrNotFound) {
				return nil, err
			}
			summary.LastActive = last
		default:
			return nil, err
		}

		out = append(out, summary)
	}

	// DeviceIDs is already alphabetical; move running devices to the front.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Running && !out[j].Running
	})
	return out, nil
}

// DeviceSessions lists a device's sessions newest first, optionally
// filtered to one date.
func (s *Service) DeviceSessions(ctx context.Context, deviceID, date string) ([]session.Record, error) {
	if err := s.ReapStale(ctx); err != nil {
		return nil, err
	}
	return s.store.Sessions(ctx, deviceID, date)
}

// DailySummary totals effective runtime for one device and date.
func (s *Service) DailySummary(ctx context.Context, deviceID, date string) (DailySummary, error) {
	if err := s.ReapStale(ctx); err != nil {
		return DailySummary{}, err
	}

	sessions, err := s.store.Sessions(ctx, deviceID, date)
	if err != nil {
		return DailySummary{}, err
	}

	now := s.now().UTC()
	summary := DailySummary{DeviceID: deviceID, Date: date, Sessions: sessions}
	for _, rec := range sessions {
		summary.TotalRuntimeSeconds += rec.EffectiveRuntime(now)
	}
	return summary, nil
}

// History groups effective runtime by calendar date over [startDate,
// endDate], emitting one entry per date in ascending order with zeros for
// empty days. Blank bounds default to the history epoch and today.
func (s *Service) History(ctx context.Context, deviceID, startDate, endDate string) ([]HistoryEntry, error) {
	if err := s.ReapStale(ctx); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if startDate == "" || endDate == "" {
		startDate = s.historyEpoch
		endDate = session.DateOf(now)
	}
	start, err := time.Parse(session.DateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date %q", ErrInvalidRange, startDate)
	}
	end, err := time.Parse(session.DateLayout, endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end_date %q", ErrInvalidRange, endDate)
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: start_date %s after end_date %s", ErrInvalidRange, startDate, endDate)
	}

	sessions, err := s.store.SessionsInRange(ctx, deviceID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	perDate := make(map[string]int64)
	for _, rec := range sessions {
		perDate[rec.Date] += rec.EffectiveRuntime(now)
	}

	var out []HistoryEntry
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(session.DateLayout)
		seconds := perDate[date]
		out = append(out, HistoryEntry{
			Date:           date,
			RuntimeSeconds: seconds,
			RuntimeHours:   math.Round(float64(seconds)/3600*100) / 100,
		})
	}
	return out, nil
}

// ExportRows lists every session for a device, newest date and start first,
// each annotated with its day's running total. Active rows extrapolate to
// now; this path intentionally skips the reap pass.
func (s *Service) ExportRows(ctx context.Context, deviceID string) ([]ExportRow, error) {
	sessions, err := s.store.SessionsForExport(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	dayTotals := make(map[string]int64)
	for _, rec := range sessions {
		dayTotals[rec.Date] += rec.EffectiveRuntime(now)
	}

	out := make([]ExportRow, 0, len(sessions))
	for _, rec := range sessions {
		out = append(out, ExportRow{Session: rec, DayTotalSeconds: dayTotals[rec.Date]})
	}
	return out, nil
}
