// Package eventstore archives emitted events in a SQL database so history
// survives restarts. Local paths use SQLite; postgres:// URLs use PostgreSQL.
package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stakerchain/core/events"
	"stakerchain/core/types"
)

var errDSNRequired = errors.New("eventstore: dsn required")

type eventRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Type       string    `gorm:"size:64;index;not null"`
	Attributes string    `gorm:"type:text;not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (eventRow) TableName() string { return "staker_events" }

// Store persists payload events. It satisfies events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errDSNRequired
	}
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(dialector(trimmed), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventstore: open: %w", err)
	}
	if !isPostgres(trimmed) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("eventstore: open: %w", err)
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&eventRow{}); err != nil {
		return nil, fmt.Errorf("eventstore: migrate: %w", err)
	}
	return &Store{
		db:     db,
		logger: log.With(slog.String("component", "eventstore")),
		nowFn:  time.Now,
	}, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func dialector(dsn string) gorm.Dialector {
	if isPostgres(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Emit implements events.Emitter. Write failures are logged; the state change
// that produced the event has already committed.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	if _, err := s.Append(payload.Event()); err != nil {
		s.logger.Error("archive event failed",
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()))
	}
}

// Append stores evt and returns its sequence number.
func (s *Store) Append(evt *types.Event) (int64, error) {
	if evt == nil {
		return 0, fmt.Errorf("eventstore: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return 0, fmt.Errorf("eventstore: encode attributes: %w", err)
	}
	row := eventRow{Type: evt.Type, Attributes: string(attrs), RecordedAt: s.nowFn().UTC()}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("eventstore: insert: %w", err)
	}
	return row.ID, nil
}

// Recent returns up to limit of the newest events, oldest first. A
// non-positive limit returns everything.
func (s *Store) Recent(limit int) ([]events.Record, error) {
	var rows []eventRow
	query := s.db.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("eventstore: query: %w", err)
	}
	out := make([]events.Record, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(rows[i].Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("eventstore: decode attributes of %d: %w", rows[i].ID, err)
		}
		out = append(out, events.Record{
			Sequence: rows[i].ID,
			Event:    &types.Event{Type: rows[i].Type, Attributes: attrs},
		})
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
