package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain/ports/adapter"
	"reminder-bot/internal/infra/logging"
	"reminder-bot/internal/infra/metrics"
)

// Compile-time check
var _ DeliveryUseCase = (*deliveryUC)(nil)

const (
	KindScheduled = "scheduled"
	KindOneOff    = "one_off"
)

// Notice is the content of one scheduled reminder.
type Notice struct {
	Text    string
	Caption string
	// FallbackFormat renders the text sent when the image fails: args are (caption, ref).
	FallbackFormat string
}

// OneOff is the content of an on-demand image request.
type OneOff struct {
	Searching string
	Caption   string
	// FallbackFormat is used as in Notice; Apology follows the link.
	FallbackFormat string
	Apology        string
}

// Result reports what reached the chat.
type Result struct {
	Ref          string
	TextSent     bool
	ImageSent    bool
	FallbackSent bool
}

func (r Result) outcome() string {
	switch {
	case r.ImageSent:
		return "ok"
	case r.FallbackSent:
		return "fallback"
	case r.TextSent:
		return "text_only"
	}
	return "failed"
}

type DeliveryUseCase interface {
	// Deliver sends the reminder text, then the image; on image failure the link is
	// re-sent as text. It never returns an error: every failure is logged and counted.
	Deliver(ctx context.Context, chatID int64, n Notice) Result
	// DeliverOneOff answers an explicit user request for an image.
	DeliverOneOff(ctx context.Context, chatID int64, o OneOff) Result
}

type deliveryUC struct {
	channel        adapter.NotificationChannel
	content        adapter.ContentProvider
	contentTimeout time.Duration
	sendTimeout    time.Duration
	log            *zerolog.Logger
}

func NewDeliveryUseCase(channel adapter.NotificationChannel, content adapter.ContentProvider, contentTimeout, sendTimeout time.Duration, logger *zerolog.Logger) *deliveryUC {
	if contentTimeout <= 0 {
		contentTimeout = 10 * time.Second
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "DeliveryUseCase").Logger()
	return &deliveryUC{
		channel:        channel,
		content:        content,
		contentTimeout: contentTimeout,
		sendTimeout:    sendTimeout,
		log:            &l,
	}
}

func (d *deliveryUC) Deliver(ctx context.Context, chatID int64, n Notice) Result {
	// once started, a delivery runs to completion even if its timer is cancelled
	ctx = context.WithoutCancel(ctx)
	log := logging.With(logging.WithChatID(ctx, chatID), d.log)
	defer logging.TraceDuration(log, "DeliveryUseCase.Deliver")()

	var res Result
	res.Ref = d.fetch(ctx)

	if err := d.send(ctx, func(c context.Context) error { return d.channel.SendText(c, chatID, n.Text) }); err != nil {
		metrics.IncSendError("sendMessage")
		log.Warn().Err(err).Msg("reminder text not sent")
	} else {
		res.TextSent = true
	}

	if err := d.send(ctx, func(c context.Context) error { return d.channel.SendImage(c, chatID, res.Ref, n.Caption) }); err != nil {
		metrics.IncSendError("sendPhoto")
		log.Warn().Err(err).Str("ref", res.Ref).Msg("image not sent, falling back to link")
		text := fmt.Sprintf(n.FallbackFormat, n.Caption, res.Ref)
		if err := d.send(ctx, func(c context.Context) error { return d.channel.SendText(c, chatID, text) }); err != nil {
			metrics.IncSendError("sendMessage")
			log.Warn().Err(err).Msg("fallback link not sent")
		} else {
			res.FallbackSent = true
		}
	} else {
		res.ImageSent = true
	}

	metrics.IncDelivery(KindScheduled, res.outcome())
	log.Info().Bool("text", res.TextSent).Bool("image", res.ImageSent).Bool("fallback", res.FallbackSent).Msg("reminder delivered")
	return res
}

func (d *deliveryUC) DeliverOneOff(ctx context.Context, chatID int64, o OneOff) Result {
	ctx = context.WithoutCancel(ctx)
	log := logging.With(logging.WithChatID(ctx, chatID), d.log)

	var res Result
	if o.Searching != "" {
		if err := d.send(ctx, func(c context.Context) error { return d.channel.SendText(c, chatID, o.Searching) }); err != nil {
			metrics.IncSendError("sendMessage")
			log.Warn().Err(err).Msg("searching notice not sent")
		} else {
			res.TextSent = true
		}
	}

	res.Ref = d.fetch(ctx)
	if err := d.send(ctx, func(c context.Context) error { return d.channel.SendImage(c, chatID, res.Ref, o.Caption) }); err != nil {
		metrics.IncSendError("sendPhoto")
		log.Warn().Err(err).Str("ref", res.Ref).Msg("one-off image not sent, falling back to link")
		format := o.FallbackFormat
		if format == "" {
			format = "%s\n\n%s"
		}
		text := fmt.Sprintf(format, o.Caption, res.Ref)
		if err := d.send(ctx, func(c context.Context) error { return d.channel.SendText(c, chatID, text) }); err != nil {
			metrics.IncSendError("sendMessage")
			log.Warn().Err(err).Msg("fallback link not sent")
		} else {
			res.FallbackSent = true
		}
		if o.Apology != "" {
			if err := d.send(ctx, func(c context.Context) error { return d.channel.SendText(c, chatID, o.Apology) }); err != nil {
				metrics.IncSendError("sendMessage")
			}
		}
	} else {
		res.ImageSent = true
	}

	metrics.IncDelivery(KindOneOff, res.outcome())
	return res
}

func (d *deliveryUC) fetch(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, d.contentTimeout)
	defer cancel()
	return d.content.FetchResourceRef(ctx)
}

func (d *deliveryUC) send(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return fn(ctx)
}
