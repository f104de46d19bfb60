package content

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain/ports/adapter"
	"reminder-bot/internal/infra/metrics"
)

var _ adapter.ContentProvider = (*Provider)(nil)

// Provider tries its sources in order, each bounded by perSource, and falls back to a
// static reference when all of them fail.
type Provider struct {
	sources   []adapter.ContentSource
	fallback  string
	perSource time.Duration
	log       *zerolog.Logger
}

func NewProvider(sources []adapter.ContentSource, fallback string, perSource time.Duration, logger *zerolog.Logger) *Provider {
	if fallback == "" {
		fallback = FallbackURL
	}
	if perSource <= 0 {
		perSource = 10 * time.Second
	}
	l := logger.With().Str("component", "ContentProvider").Logger()
	return &Provider{sources: sources, fallback: fallback, perSource: perSource, log: &l}
}

// NewDefaultProvider wires TheCatAPI then Cataas.
func NewDefaultProvider(perSource time.Duration, logger *zerolog.Logger) *Provider {
	return NewProvider([]adapter.ContentSource{
		NewTheCatAPI("", nil),
		NewCataas("", "", nil),
	}, FallbackURL, perSource, logger)
}

func (p *Provider) FetchResourceRef(ctx context.Context) string {
	for _, src := range p.sources {
		if ctx.Err() != nil {
			break
		}
		ref, err := p.try(ctx, src)
		if err != nil {
			metrics.IncContentRequest(src.Name(), "error")
			p.log.Warn().Err(err).Str("source", src.Name()).Msg("content source failed")
			continue
		}
		metrics.IncContentRequest(src.Name(), "ok")
		p.log.Debug().Str("source", src.Name()).Msg("content source answered")
		return ref
	}
	metrics.IncContentRequest("static", "fallback")
	p.log.Info().Str("ref", p.fallback).Msg("using fallback content")
	return p.fallback
}

func (p *Provider) try(ctx context.Context, src adapter.ContentSource) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.perSource)
	defer cancel()
	return src.Fetch(ctx)
}
