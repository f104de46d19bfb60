package application

import (
	"context"
	"time"

	"reminder-bot/internal/domain/model"
	"reminder-bot/internal/infra/worker"
	"reminder-bot/internal/usecase"
)

// ---- small interfaces to decouple the dispatcher from concrete infra structs ----

type ReminderScheduler interface {
	Start(cfg *model.ReminderSettings) error
	Stop(userID int64) bool
	NextFire(userID int64) (time.Time, bool)
}

type Translator interface {
	T(key string, args ...interface{}) string
	Raw(key string) string
}

// RateLimiter may be nil in the dispatcher; then every command is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

type TaskSubmitter interface {
	Submit(task worker.Task) error
}

type OneOffDeliverer interface {
	DeliverOneOff(ctx context.Context, chatID int64, o usecase.OneOff) usecase.Result
}
