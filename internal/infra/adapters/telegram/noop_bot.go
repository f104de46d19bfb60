package telegram

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain/ports/adapter"
)

var (
	_ adapter.NotificationChannel = (*NoopBotAdapter)(nil)
	_ adapter.UpdateSource        = (*NoopBotAdapter)(nil)
)

// NoopBotAdapter is the dev-mode channel: it logs instead of sending and reads inbound
// lines from input as messages of a single local user.
type NoopBotAdapter struct {
	log    *zerolog.Logger
	input  io.Reader
	userID int64
	delay  time.Duration

	mu   sync.Mutex
	sent []string
}

func NewNoopBotAdapter(input io.Reader, userID int64, logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &l, input: input, userID: userID, delay: 100 * time.Millisecond}
}

func (b *NoopBotAdapter) wait(ctx context.Context) error {
	select {
	case <-time.After(b.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *NoopBotAdapter) record(s string) {
	b.mu.Lock()
	b.sent = append(b.sent, s)
	b.mu.Unlock()
}

// Sent returns everything "sent" so far.
func (b *NoopBotAdapter) Sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func (b *NoopBotAdapter) SendText(ctx context.Context, chatID int64, text string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.record(text)
	b.log.Info().Int64("chat_id", chatID).Str("text", text).Msg("sendMessage")
	return nil
}

func (b *NoopBotAdapter) SendImage(ctx context.Context, chatID int64, ref, caption string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.record(ref)
	b.log.Info().Int64("chat_id", chatID).Str("ref", ref).Str("caption", caption).Msg("sendPhoto")
	return nil
}

func (b *NoopBotAdapter) SendMenu(ctx context.Context, chatID int64, text string, menu adapter.Menu) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.record(text)
	b.log.Info().Int64("chat_id", chatID).Str("text", text).Interface("menu", menu).Msg("sendMessage")
	return nil
}

// Updates emits one message per non-empty input line; with no input it only waits for
// ctx to end.
func (b *NoopBotAdapter) Updates(ctx context.Context) <-chan adapter.Inbound {
	out := make(chan adapter.Inbound)
	go func() {
		defer close(out)
		if b.input == nil {
			<-ctx.Done()
			return
		}
		sc := bufio.NewScanner(b.input)
		for sc.Scan() {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			select {
			case out <- adapter.Inbound{UserID: b.userID, ChatID: b.userID, Text: text}:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out
}
