// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

// Menu is a reply keyboard; each inner slice is one row of button labels.
type Menu [][]string

// NotificationChannel delivers messages to a chat. A returned error is a normal,
// expected outcome (blocked bot, bad photo URL, timeout) and callers degrade on it.
type NotificationChannel interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendImage(ctx context.Context, chatID int64, ref, caption string) error
	SendMenu(ctx context.Context, chatID int64, text string, menu Menu) error
}

// Inbound is one user message taken from the update stream.
type Inbound struct {
	UserID int64
	ChatID int64
	Text   string
}

// UpdateSource produces inbound messages until ctx is cancelled.
type UpdateSource interface {
	Updates(ctx context.Context) <-chan Inbound
}
