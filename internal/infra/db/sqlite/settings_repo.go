package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// pure Go "sqlite" driver
	_ "modernc.org/sqlite"

	"reminder-bot/internal/domain"
	"reminder-bot/internal/domain/model"
	"reminder-bot/internal/domain/ports/repository"
	"reminder-bot/internal/infra/metrics"
)

const driverName = "sqlite"

var _ repository.SettingsRepository = (*SettingsRepo)(nil)

// SettingsRepo stores reminder settings in an embedded SQLite file. A single
// connection serializes every read and write.
type SettingsRepo struct{ db *sql.DB }

// Open opens (or creates) the database at path, applies PRAGMAs and migrations.
func Open(ctx context.Context, path string) (*SettingsRepo, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &SettingsRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *SettingsRepo) Close() error { return r.db.Close() }

// Save inserts or updates the row for s.UserID. created_at is written only on insert.
func (r *SettingsRepo) Save(ctx context.Context, s *model.ReminderSettings) (err error) {
	if s == nil || s.UserID == 0 {
		return domain.ErrInvalidArgument
	}
	defer func(start time.Time) { metrics.ObserveStoreOp(driverName, "save", start, err) }(time.Now())
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, chat_id, is_active, reminder_time, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			chat_id       = excluded.chat_id,
			is_active     = excluded.is_active,
			reminder_time = excluded.reminder_time`,
		s.UserID, s.ChatID, boolToInt(s.Active), s.FireTime.String(), created.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save settings %d: %w", s.UserID, err)
	}
	return nil
}

func (r *SettingsRepo) Get(ctx context.Context, userID int64) (*model.ReminderSettings, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, chat_id, is_active, reminder_time, created_at
		FROM user_settings
		WHERE user_id = ?`,
		userID,
	)
	s, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveStoreOp(driverName, "get", start, nil)
		return nil, domain.ErrNotFound
	}
	metrics.ObserveStoreOp(driverName, "get", start, err)
	if err != nil {
		return nil, fmt.Errorf("get settings %d: %w", userID, err)
	}
	return s, nil
}

func (r *SettingsRepo) ListActive(ctx context.Context) (res []*model.ReminderSettings, err error) {
	defer func(start time.Time) { metrics.ObserveStoreOp(driverName, "list_active", start, err) }(time.Now())
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, chat_id, is_active, reminder_time, created_at
		FROM user_settings
		WHERE is_active = 1
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSettings(sc scanner) (*model.ReminderSettings, error) {
	var (
		s         model.ReminderSettings
		active    int
		slot      string
		createdAt int64
	)
	if err := sc.Scan(&s.UserID, &s.ChatID, &active, &slot, &createdAt); err != nil {
		return nil, err
	}
	fire, err := model.ParseSlot(slot)
	if err != nil {
		return nil, fmt.Errorf("user %d: stored reminder_time %q: %w", s.UserID, slot, err)
	}
	s.Active = active != 0
	s.FireTime = fire
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
