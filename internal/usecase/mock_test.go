package usecase_test

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain/ports/adapter"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type sentMessage struct {
	Kind    string // text | image | menu
	ChatID  int64
	Text    string
	Ref     string
	Caption string
}

// MockChannel records every send; ImageErr / TextErr make the matching call fail.
type MockChannel struct {
	mu       sync.Mutex
	Sent     []sentMessage
	TextErr  error
	ImageErr error
	// ctxErr captures ctx.Err() observed at send time
	ctxErrs []error
}

var _ adapter.NotificationChannel = (*MockChannel)(nil)

func (m *MockChannel) SendText(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.TextErr != nil {
		return m.TextErr
	}
	m.Sent = append(m.Sent, sentMessage{Kind: "text", ChatID: chatID, Text: text})
	return nil
}

func (m *MockChannel) SendImage(ctx context.Context, chatID int64, ref, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.ImageErr != nil {
		return m.ImageErr
	}
	m.Sent = append(m.Sent, sentMessage{Kind: "image", ChatID: chatID, Ref: ref, Caption: caption})
	return nil
}

func (m *MockChannel) SendMenu(ctx context.Context, chatID int64, text string, menu adapter.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{Kind: "menu", ChatID: chatID, Text: text})
	return nil
}

type MockContent struct {
	FetchFunc func(ctx context.Context) string
}

func (m *MockContent) FetchResourceRef(ctx context.Context) string {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	return "https://example.test/cat.jpg"
}
