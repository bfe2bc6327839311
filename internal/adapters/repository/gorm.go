package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/pkg/metrics"
)

const replayBatch = 500

var jsonNull = []byte("null")

type eventRow struct {
	ID             string         `gorm:"primaryKey;size:64"`
	UserID         string         `gorm:"size:128;not null;uniqueIndex:idx_trust_events_user_seq,priority:1;index:idx_trust_events_user_created,priority:1"`
	Seq            int64          `gorm:"not null;uniqueIndex:idx_trust_events_user_seq,priority:2"`
	EventType      string         `gorm:"size:64;not null"`
	WeightApplied  int            `gorm:"not null"`
	BaseWeight     int            `gorm:"not null"`
	Context        datatypes.JSON `gorm:"not null"`
	ResultingScore int            `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime:false;index:idx_trust_events_user_created,priority:2"`
}

func (eventRow) TableName() string { return "trust_score_events" }

type profileRow struct {
	UserID    string    `gorm:"primaryKey;size:128"`
	Score     int       `gorm:"not null"`
	Level     string    `gorm:"size:64;not null"`
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (profileRow) TableName() string { return "trust_profiles" }

// GormStore keeps the ledger in a SQL database through gorm.
type GormStore struct {
	db     *gorm.DB
	driver string
}

// NewGormStore wraps db. The schema must already exist, see Migrate.
func NewGormStore(db *gorm.DB, driver string) *GormStore {
	return &GormStore{db: db, driver: driver}
}

// Migrate creates or updates the ledger tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&eventRow{}, &profileRow{}); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Profile(ctx context.Context, userID string) (model.Profile, bool, error) {
	defer s.observe("profile", time.Now())

	var rows []profileRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return model.Profile{}, false, fmt.Errorf("query profile: %w", err)
	}
	if len(rows) == 0 {
		return model.Profile{}, false, nil
	}
	return rows[0].toModel(), true, nil
}

func (s *GormStore) FindEvent(ctx context.Context, eventID string) (model.Event, bool, error) {
	defer s.observe("find_event", time.Now())

	var rows []eventRow
	if err := s.db.WithContext(ctx).Where("id = ?", eventID).Limit(1).Find(&rows).Error; err != nil {
		return model.Event{}, false, fmt.Errorf("query event: %w", err)
	}
	if len(rows) == 0 {
		return model.Event{}, false, nil
	}
	return rows[0].toModel(), true, nil
}

func (s *GormStore) CountSince(ctx context.Context, userID, eventType string, since time.Time) (int, error) {
	defer s.observe("count_since", time.Now())

	var n int64
	err := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("user_id = ? AND event_type = ? AND created_at >= ?", userID, eventType, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

func (s *GormStore) Append(ctx context.Context, ev model.Event, p model.Profile) error {
	if err := checkAppend(ev, p); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreAppendLatency(s.driver, float64(time.Since(start).Microseconds())/1000)
	}()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prof := newProfileRow(p)
		if ev.Seq == 1 {
			if err := tx.Create(&prof).Error; err != nil {
				return translate(err)
			}
		} else {
			res := tx.Model(&profileRow{}).
				Where("user_id = ? AND version = ?", p.UserID, ev.Seq-1).
				Updates(map[string]any{
					"score":      prof.Score,
					"level":      prof.Level,
					"version":    prof.Version,
					"updated_at": prof.UpdatedAt,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: profile %s moved past version %d", ErrConflict, p.UserID, ev.Seq-1)
			}
		}

		row := newEventRow(ev)
		if err := tx.Create(&row).Error; err != nil {
			return translate(err)
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		metrics.RecordStoreConflict()
	}
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *GormStore) SaveProfile(ctx context.Context, p model.Profile) error {
	row := newProfileRow(p)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []profileRow
		if err := tx.Where("user_id = ?", p.UserID).Limit(1).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("profile %s: %w", p.UserID, ErrNotFound)
		}
		res := tx.Model(&profileRow{}).
			Where("user_id = ? AND version = ?", p.UserID, p.Version).
			Updates(map[string]any{
				"score":      row.Score,
				"level":      row.Level,
				"updated_at": row.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			metrics.RecordStoreConflict()
			return fmt.Errorf("%w: stored version %d, saving %d", ErrConflict, rows[0].Version, p.Version)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Events loads the page when iteration starts and releases the connection
// before yielding.
func (s *GormStore) Events(ctx context.Context, userID string, limit int) iter.Seq2[model.Event, error] {
	return once(func(yield func(model.Event, error) bool) {
		start := time.Now()
		q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}

		var rows []eventRow
		err := q.Find(&rows).Error
		s.observe("events", start)
		if err != nil {
			failed(fmt.Errorf("query events: %w", err))(yield)
			return
		}

		for _, row := range rows {
			if !yield(row.toModel(), nil) {
				return
			}
		}
	})
}

func (s *GormStore) Replay(ctx context.Context, userID string, fn func(model.Event) error) error {
	var after int64
	for {
		var rows []eventRow
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND seq > ?", userID, after).
			Order("seq ASC").
			Limit(replayBatch).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("replay events: %w", err)
		}
		for _, row := range rows {
			if err := fn(row.toModel()); err != nil {
				return err
			}
			after = row.Seq
		}
		if len(rows) < replayBatch {
			return nil
		}
	}
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&profileRow{}).Count(&st.Profiles).Error; err != nil {
		return Stats{}, fmt.Errorf("count profiles: %w", err)
	}
	if err := db.Model(&eventRow{}).Count(&st.Events).Error; err != nil {
		return Stats{}, fmt.Errorf("count events: %w", err)
	}
	return st, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) observe(op string, start time.Time) {
	metrics.RecordStoreQueryLatency(s.driver, op, float64(time.Since(start).Microseconds())/1000)
}

// translate maps unique violations to ErrConflict. Drivers without an error
// translator are matched on their message.
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func newEventRow(ev model.Event) eventRow {
	ctxJSON := datatypes.JSON(jsonNull)
	if len(ev.Context) > 0 {
		ctxJSON = datatypes.JSON(ev.Context)
	}
	return eventRow{
		ID:             ev.ID,
		UserID:         ev.UserID,
		Seq:            ev.Seq,
		EventType:      ev.Type,
		WeightApplied:  ev.WeightApplied,
		BaseWeight:     ev.BaseWeight,
		Context:        ctxJSON,
		ResultingScore: ev.ResultingScore,
		CreatedAt:      ev.CreatedAt.UTC(),
	}
}

func (r eventRow) toModel() model.Event {
	var raw []byte
	if len(r.Context) > 0 && !bytes.Equal(r.Context, jsonNull) {
		raw = []byte(r.Context)
	}
	return model.Event{
		ID:             r.ID,
		UserID:         r.UserID,
		Type:           r.EventType,
		WeightApplied:  r.WeightApplied,
		BaseWeight:     r.BaseWeight,
		Context:        raw,
		Seq:            r.Seq,
		CreatedAt:      r.CreatedAt.UTC(),
		ResultingScore: r.ResultingScore,
	}
}

func newProfileRow(p model.Profile) profileRow {
	return profileRow{
		UserID:    p.UserID,
		Score:     p.Score,
		Level:     p.Level,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (r profileRow) toModel() model.Profile {
	return model.Profile{
		UserID:    r.UserID,
		Score:     r.Score,
		Level:     r.Level,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
