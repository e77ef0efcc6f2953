package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/keyawins-art/Time-stamp/internal/db"
	"github.com/keyawins-art/Time-stamp/internal/ids"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	store := &GormStore{db: gormDB}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(&sessionRow{})
}

func (s *GormStore) StartSession(ctx context.Context, deviceID string, now time.Time) (Record, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return Record{}, err
	}

	var out Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var actives []sessionRow
		if err := tx.Where("device_id = ? AND status = ?", deviceID, string(StatusActive)).
			Find(&actives).Error; err != nil {
			return fmt.Errorf("find active sessions: %w", err)
		}
		for _, row := range actives {
			closed := rowFromRecord(closeAt(row.toRecord(), row.LastHeartbeat))
			if err := tx.Save(&closed).Error; err != nil {
				return fmt.Errorf("close superseded session: %w", err)
			}
		}

		var maxOrdinal int64
		if err := tx.Model(&sessionRow{}).
			Where("device_id = ? AND date = ?", deviceID, DateOf(now)).
			Select("COALESCE(MAX(device_session_id), 0)").
			Scan(&maxOrdinal).Error; err != nil {
			return fmt.Errorf("ordinal lookup: %w", err)
		}

		rec := newRecord(ids.New(), deviceID, maxOrdinal+1, now)
		row := rowFromRecord(rec)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (s *GormStore) Heartbeat(ctx context.Context, sessionID string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ?", sessionID).
		Update("last_heartbeat", now)
	if res.Error != nil {
		return fmt.Errorf("update heartbeat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) StopSession(ctx context.Context, sessionID string, now time.Time) (Record, error) {
	var out Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		if err := tx.Where("id = ?", sessionID).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get session: %w", err)
		}

		closed := rowFromRecord(closeAt(row.toRecord(), now))
		if err := tx.Save(&closed).Error; err != nil {
			return fmt.Errorf("stop session: %w", err)
		}
		out = closed.toRecord()
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (s *GormStore) CloseStale(ctx context.Context, cutoff time.Time) ([]Record, error) {
	var closed []Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []sessionRow
		if err := tx.Where("status = ? AND last_heartbeat < ?", string(StatusActive), cutoff).
			Find(&stale).Error; err != nil {
			return fmt.Errorf("find stale sessions: %w", err)
		}
		for _, row := range stale {
			rec := closeAt(row.toRecord(), row.LastHeartbeat)
			saved := rowFromRecord(rec)
			if err := tx.Save(&saved).Error; err != nil {
				return fmt.Errorf("close stale session: %w", err)
			}
			closed = append(closed, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *GormStore) DeviceIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Distinct().
		Order("device_id ASC").
		Pluck("device_id", &out).Error
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

func (s *GormStore) ActiveSession(ctx context.Context, deviceID string) (Record, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, string(StatusActive)).
		Order("session_start DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get active session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) LatestHeartbeat(ctx context.Context, deviceID string) (time.Time, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("last_heartbeat DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get latest heartbeat: %w", err)
	}
	return row.LastHeartbeat, nil
}

func (s *GormStore) Sessions(ctx context.Context, deviceID, date string) ([]Record, error) {
	query := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("session_start DESC")
	if date != "" {
		query = query.Where("date = ?", date)
	}

	var rows []sessionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return toRecords(rows), nil
}

func (s *GormStore) SessionsInRange(ctx context.Context, deviceID, startDate, endDate string) ([]Record, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND date >= ? AND date <= ?", deviceID, startDate, endDate).
		Order("date ASC, session_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions in range: %w", err)
	}
	return toRecords(rows), nil
}

func (s *GormStore) SessionsForExport(ctx context.Context, deviceID string) ([]Record, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("date DESC, session_start DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions for export: %w", err)
	}
	return toRecords(rows), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func toRecords(rows []sessionRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out
}
