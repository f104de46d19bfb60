package model

import (
	"time"

	"reminder-bot/internal/domain"
)

// ReminderSettings is the persisted reminder configuration of one user.
// There is exactly one row per UserID.
type ReminderSettings struct {
	UserID    int64
	ChatID    int64
	Active    bool
	FireTime  Slot
	CreatedAt time.Time
}

func NewReminderSettings(userID, chatID int64, active bool, slot Slot, now time.Time) (*ReminderSettings, error) {
	if userID == 0 || chatID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if !slot.IsOffered() {
		return nil, domain.ErrInvalidSlot
	}
	return &ReminderSettings{
		UserID:    userID,
		ChatID:    chatID,
		Active:    active,
		FireTime:  slot,
		CreatedAt: now.UTC().Truncate(time.Second),
	}, nil
}

// NextFire is the next delivery instant for these settings as seen from now.
func (s *ReminderSettings) NextFire(now time.Time, loc *time.Location) time.Time {
	return s.FireTime.Next(now, loc)
}
