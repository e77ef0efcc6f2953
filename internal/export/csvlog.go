package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/keyawins-art/Time-stamp/internal/session"
	"github.com/keyawins-art/Time-stamp/internal/tracker"
)

var header = []string{"Date", "Device ID", "Session ID", "Start Time", "End Time", "Runtime", "Status"}

// Writer appends closed sessions to a per-day CSV file
// (<dir>/sessions_<date>.csv). It is a side channel: callers are expected
// to tolerate failures.
type Writer struct {
	mu  sync.Mutex
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Log(rec session.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("sessions_%s.csv", rec.Date))
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	endTime := "N/A"
	if !rec.SessionEnd.IsZero() {
		endTime = rec.SessionEnd.UTC().Format("15:04:05")
	}
	row := []string{
		rec.Date,
		rec.DeviceID,
		fmt.Sprintf("#%d", rec.DeviceSessionID),
		rec.SessionStart.UTC().Format("15:04:05"),
		endTime,
		tracker.FormatRuntime(rec.RuntimeSeconds),
		string(rec.Status),
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write session row: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush session log: %w", err)
	}
	return nil
}
