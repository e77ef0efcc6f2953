package session

import "time"

type sessionRow struct {
	ID              string     `gorm:"primaryKey;size:64"`
	DeviceID        string     `gorm:"size:191;not null;index:idx_sessions_device;index:idx_sessions_one_active,unique,where:status = 'active'"`
	DeviceSessionID int64      `gorm:"not null;default:1"`
	SessionStart    time.Time  `gorm:"not null"`
	LastHeartbeat   time.Time  `gorm:"not null;index"`
	SessionEnd      *time.Time `gorm:""`
	RuntimeSeconds  int64      `gorm:"not null;default:0"`
	Date            string     `gorm:"size:10;not null;index:idx_sessions_date"`
	Status          string     `gorm:"size:20;not null;index:idx_sessions_status"`
}

func (sessionRow) TableName() string {
	return "sessions"
}

func (r sessionRow) toRecord() Record {
	rec := Record{
		ID:              r.ID,
		DeviceID:        r.DeviceID,
		DeviceSessionID: r.DeviceSessionID,
		SessionStart:    r.SessionStart,
		LastHeartbeat:   r.LastHeartbeat,
		RuntimeSeconds:  r.RuntimeSeconds,
		Date:            r.Date,
		Status:          Status(r.Status),
	}
	if r.SessionEnd != nil {
		rec.SessionEnd = *r.SessionEnd
	}
	return rec
}

func rowFromRecord(rec Record) sessionRow {
	row := sessionRow{
		ID:              rec.ID,
		DeviceID:        rec.DeviceID,
		DeviceSessionID: rec.DeviceSessionID,
		SessionStart:    rec.SessionStart,
		LastHeartbeat:   rec.LastHeartbeat,
		RuntimeSeconds:  rec.RuntimeSeconds,
		Date:            rec.Date,
		Status:          string(rec.Status),
	}
	if !rec.SessionEnd.IsZero() {
		end := rec.SessionEnd
		row.SessionEnd = &end
	}
	return row
}
