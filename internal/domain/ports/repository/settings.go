package repository

import (
	"context"

	"reminder-bot/internal/domain/model"
)

// -----------------------------
// Reminder settings
// -----------------------------

// SettingsRepository is the durable store of per-user reminder configuration.
// Implementations must be safe for concurrent use by the command path and by every
// timer's reconfirmation read.
type SettingsRepository interface {
	// Get returns domain.ErrNotFound when the user has no settings row.
	Get(ctx context.Context, userID int64) (*model.ReminderSettings, error)
	// Save upserts by UserID; CreatedAt of an existing row is preserved.
	Save(ctx context.Context, s *model.ReminderSettings) error
	ListActive(ctx context.Context) ([]*model.ReminderSettings, error)
	Close() error
}
