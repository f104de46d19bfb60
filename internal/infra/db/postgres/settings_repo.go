package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reminder-bot/internal/domain"
	"reminder-bot/internal/domain/model"
	"reminder-bot/internal/domain/ports/repository"
	"reminder-bot/internal/infra/metrics"
)

var _ repository.SettingsRepository = (*PostgresSettingsRepo)(nil)

type PostgresSettingsRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSettingsRepo(pool *pgxpool.Pool) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{pool: pool}
}

func (r *PostgresSettingsRepo) Save(ctx context.Context, s *model.ReminderSettings) (err error) {
	if s == nil || s.UserID == 0 {
		return domain.ErrInvalidArgument
	}
	defer r.observe("save", time.Now(), &err)
	const q = `
INSERT INTO user_settings (user_id, chat_id, is_active, reminder_time, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (user_id) DO UPDATE SET
  chat_id=$2, is_active=$3, reminder_time=$4;
`
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err = r.pool.Exec(ctx, q, s.UserID, s.ChatID, s.Active, s.FireTime.String(), created); err != nil {
		return fmt.Errorf("save settings %d: %w", s.UserID, err)
	}
	return nil
}

func (r *PostgresSettingsRepo) Get(ctx context.Context, userID int64) (_ *model.ReminderSettings, err error) {
	defer r.observe("get", time.Now(), &err)
	const q = `
SELECT user_id, chat_id, is_active, reminder_time, created_at
  FROM user_settings WHERE user_id=$1;`
	s, err := scanSettings(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get settings %d: %w", userID, err)
	}
	return s, nil
}

func (r *PostgresSettingsRepo) ListActive(ctx context.Context) (_ []*model.ReminderSettings, err error) {
	defer r.observe("list_active", time.Now(), &err)
	const q = `
SELECT user_id, chat_id, is_active, reminder_time, created_at
  FROM user_settings WHERE is_active ORDER BY user_id;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	var out []*model.ReminderSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// observe records the call and samples pool usage; a missing row is not an error.
func (r *PostgresSettingsRepo) observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, domain.ErrNotFound) {
		err = nil
	}
	metrics.ObserveStoreOp("postgres", op, start, err)
	st := r.pool.Stat()
	metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
}

func (r *PostgresSettingsRepo) Close() error {
	r.pool.Close()
	return nil
}

func scanSettings(row pgx.Row) (*model.ReminderSettings, error) {
	var (
		s    model.ReminderSettings
		slot string
	)
	if err := row.Scan(&s.UserID, &s.ChatID, &s.Active, &slot, &s.CreatedAt); err != nil {
		return nil, err
	}
	fire, err := model.ParseSlot(slot)
	if err != nil {
		return nil, fmt.Errorf("user %d: stored reminder_time %q: %w", s.UserID, slot, err)
	}
	s.FireTime = fire
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
