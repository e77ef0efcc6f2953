package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keyawins-art/Time-stamp/internal/session"
)

func TestDevicesRosterCountsActiveRuntime(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	svc, _, _ := newTestService(t, clock)
	ctx := context.Background()

	// device-1: a completed 300s session, then an active one 120s old.
	first, err := svc.StartSession(ctx, "device-1")
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	clock.Advance(300 * time.Second)
	if _, err := svc.StopSession(ctx, first.ID); err != nil {
		t.Fatalf("stop first: %v", err)
	}
	active, err := svc.StartSession(ctx, "device-1")
	if err != nil {
		t.Fatalf("start active: %v", err)
	}
	clock.Advance(120 * time.Second)
	if err := svc.Heartbeat(ctx, active.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	// device-0 sorts first alphabetically but is stopped.
	stoppedRec, err := svc.StartSession(ctx, "device-0")
	if err != nil {
		t.Fatalf("start device-0: %v", err)
	}
	if _, err := svc.StopSession(ctx, stoppedRec.ID); err != nil {
		t.Fatalf("stop device-0: %v", err)
	}

	devices, err := svc.Devices(ctx)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	// Running devices come first regardless of name order.
	if devices[0].DeviceID != "device-1" || !devices[0].Running {
		t.Fatalf("expected device-1 running first, got %+v", devices[0])
	}
	if devices[0].TodayRuntimeSeconds != 420 {
		t.Fatalf("expected 420s today (300 completed + 120 active), got %d", devices[0].TodayRuntimeSeconds)
	}
	if devices[0].SessionCountToday != 2 {
		t.Fatalf("expected 2 sessions today, got %d", devices[0].SessionCountToday)
	}
	if devices[1].DeviceID != "device-0" || devices[1].Running {
		t.Fatalf("expected device-0 stopped second, got %+v", devices[1])
	}
}

func TestDevicesReapsBeforeReporting(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	svc, _, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.StartSession(ctx, "device-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(10 * time.Minute)

	devices, err := svc.Devices(ctx)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	if devices[0].Running {
		t.Fatalf("stale session must not report as running")
	}
	// Closed at the last heartbeat, so today's runtime is 0.
	if devices[0].TodayRuntimeSeconds != 0 {
		t.Fatalf("expected 0s runtime for reaped session, got %d", devices[0].TodayRuntimeSeconds)
	}
}

func TestDailySummaryTotalsEffectiveRuntime(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	svc, _, _ := newTestService(t, clock)
	ctx := context.Background()

	rec, err := svc.StartSession(ctx, "device-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(90 * time.Second)
	if _, err := svc.StopSession(ctx, rec.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := svc.StartSession(ctx, "device-1"); err != nil {
		t.Fatalf("start second: %v", err)
	}
	clock.Advance(30 * time.Second)

	summary, err := svc.DailySummary(ctx, "device-1", "2026-03-01")
	if err != nil {
		t.Fatalf("daily summary: %v", err)
	}
	if summary.TotalRuntimeSeconds != 120 {
		t.Fatalf("expected 120s total, got %d", summary.TotalRuntimeSeconds)
	}
	if len(summary.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(summary.Sessions))
	}
}

func TestHistoryZeroFillsRange(t *testing.T) {
	clock := newFakeClock("2026-03-02 08:00:00")
	svc, _, _ := newTestService(t, clock)
	ctx := context.Background()

	rec, err := svc.StartSession(ctx, "device-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := svc.StopSession(ctx, rec.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	entries, err := svc.History(ctx, "device-1", "2026-03-01", "2026-03-03")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Date != "2026-03-01" || entries[0].RuntimeSeconds != 0 {
		t.Fatalf("expected empty first day, got %+v", entries[0])
	}
	if entries[1].Date != "2026-03-02" || entries[1].RuntimeSeconds != 3600 || entries[1].RuntimeHours != 1.0 {
		t.Fatalf("unexpected middle day: %+v", entries[1])
	}
	if entries[2].Date != "2026-03-03" || entries[2].RuntimeSeconds != 0 {
		t.Fatalf("expected empty last day, got %+v", entries[2])
	}
}

func TestHistoryRejectsBadRanges(t *testing.T) {
	clock := newFakeClock("2026-03-02 08:00:00")
	svc, _, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.History(ctx, "device-1", "not-a-date", "2026-03-03"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for bad start, got %v", err)
	}
	if _, err := svc.History(ctx, "device-1", "2026-03-03", "2026-03-01"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted range, got %v", err)
	}
}

func TestHistoryDefaultsToEpoch(t *testing.T) {
	clock := newFakeClock("2026-01-03 08:00:00")
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	svc := New(testLogger(), store, nil, WithClock(clock.Now), WithHistoryEpoch("2026-01-01"))
	ctx := context.Background()

	entries, err := svc.History(ctx, "device-1", "", "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries from epoch to today, got %d", len(entries))
	}
	if entries[0].Date != "2026-01-01" || entries[2].Date != "2026-01-03" {
		t.Fatalf("unexpected bounds: %s .. %s", entries[0].Date, entries[len(entries)-1].Date)
	}
}

func TestExportRowsCarryDayTotals(t *testing.T) {
	clock := newFakeClock("2026-03-01 10:00:00")
	svc, _, _ := newTestService(t, clock)
	ctx := context.Background()

	first, err := svc.StartSession(ctx, "device-1")
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	clock.Advance(60 * time.Second)
	if _, err := svc.StopSession(ctx, first.ID); err != nil {
		t.Fatalf("stop first: %v", err)
	}
	if _, err := svc.StartSession(ctx, "device-1"); err != nil {
		t.Fatalf("start second: %v", err)
	}
	clock.Advance(30 * time.Second)

	rows, err := svc.ExportRows(ctx, "device-1")
	if err != nil {
		t.Fatalf("export rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.DayTotalSeconds != 90 {
			t.Fatalf("expected day total 90s, got %d", row.DayTotalSeconds)
		}
	}
	// Newest first; the active session leads.
	if rows[0].Session.Status != session.StatusActive {
		t.Fatalf("expected active session first, got %+v", rows[0].Session)
	}

	// Export does not reap: the active session stays active even when stale.
	clock.Advance(10 * time.Minute)
	rows, err = svc.ExportRows(ctx, "device-1")
	if err != nil {
		t.Fatalf("export rows after idle: %v", err)
	}
	if rows[0].Session.Status != session.StatusActive {
		t.Fatalf("export must not reap, got %+v", rows[0].Session)
	}
}
