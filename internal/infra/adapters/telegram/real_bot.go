package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reminder-bot/internal/config"
	"reminder-bot/internal/domain/ports/adapter"
)

var (
	_ adapter.NotificationChannel = (*RealTelegramBotAdapter)(nil)
	_ adapter.UpdateSource        = (*RealTelegramBotAdapter)(nil)
)

// RealTelegramBotAdapter sends through the Bot API and long-polls getUpdates.
type RealTelegramBotAdapter struct {
	bot *tgbotapi.BotAPI
	cfg *config.BotConfig
	log *zerolog.Logger
}

// NewRealTelegramBotAdapter connects with the token; tgbotapi calls getMe here, so a bad
// token or an unreachable API fails startup.
func NewRealTelegramBotAdapter(cfg *config.BotConfig, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	l := logger.With().Str("component", "TelegramBot").Logger()
	_ = tgbotapi.SetLogger(botLogger{log: &l})

	// the long poll holds the request open for PollTimeout seconds
	client := &http.Client{Timeout: cfg.RequestTimeout + time.Duration(cfg.PollTimeout)*time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	l.Info().Str("username", bot.Self.UserName).Str("first_name", bot.Self.FirstName).Msg("connected to Telegram")
	return &RealTelegramBotAdapter{bot: bot, cfg: cfg, log: &l}, nil
}

func (r *RealTelegramBotAdapter) Username() string { return r.bot.Self.UserName }

func (r *RealTelegramBotAdapter) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return r.send(ctx, msg)
}

func (r *RealTelegramBotAdapter) SendImage(ctx context.Context, chatID int64, ref, caption string) error {
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(ref))
	p.Caption = caption
	p.ParseMode = tgbotapi.ModeHTML
	return r.send(ctx, p)
}

func (r *RealTelegramBotAdapter) SendMenu(ctx context.Context, chatID int64, text string, menu adapter.Menu) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = replyKeyboard(menu)
	return r.send(ctx, msg)
}

func replyKeyboard(menu adapter.Menu) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(menu))
	for _, row := range menu {
		if len(row) == 0 {
			continue
		}
		btns := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			btns = append(btns, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, btns)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// send runs the blocking API call and gives up when ctx ends; the request itself is
// bounded by the http client timeout.
func (r *RealTelegramBotAdapter) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, err := r.bot.Send(c)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Updates long-polls getUpdates and emits text messages until ctx is cancelled.
func (r *RealTelegramBotAdapter) Updates(ctx context.Context) <-chan adapter.Inbound {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = r.cfg.PollTimeout
	updates := r.bot.GetUpdatesChan(u)

	out := make(chan adapter.Inbound)
	go func() {
		defer close(out)
		defer r.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case up, ok := <-updates:
				if !ok {
					return
				}
				in, ok := toInbound(up)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// toInbound keeps only user text messages.
func toInbound(up tgbotapi.Update) (adapter.Inbound, bool) {
	m := up.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return adapter.Inbound{}, false
	}
	return adapter.Inbound{UserID: m.From.ID, ChatID: m.Chat.ID, Text: m.Text}, true
}

// botLogger routes tgbotapi's internal logging into zerolog.
type botLogger struct{ log *zerolog.Logger }

func (b botLogger) Println(v ...interface{}) { b.log.Warn().Msg(fmt.Sprint(v...)) }

func (b botLogger) Printf(format string, v ...interface{}) {
	b.log.Warn().Msgf(format, v...)
}
