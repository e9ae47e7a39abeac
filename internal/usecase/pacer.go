package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"SpriteForge/internal/config"
)

// Pacer owns every timed wait so that tests can shrink them and -debug can add jitter.
type Pacer struct {
	jitter bool
	min    time.Duration
	max    time.Duration
	logger *slog.Logger
}

// NewPacer builds a pacer from the jitter settings.
func NewPacer(cfg config.JitterConfig, logger *slog.Logger) *Pacer {
	lo, hi := cfg.Min, cfg.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	return &Pacer{jitter: cfg.Enabled, min: lo, max: hi, logger: logger}
}

// Pause sleeps for d or until ctx is done.
func (p *Pacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter waits a random duration in [min, max] when debug jitter is on; otherwise it is a no-op.
func (p *Pacer) Jitter(ctx context.Context) error {
	if p == nil || !p.jitter {
		return ctx.Err()
	}
	d := p.min
	if span := p.max - p.min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if p.logger != nil {
		p.logger.Debug("debug jitter", "wait", d.Round(10*time.Millisecond))
	}
	return p.Pause(ctx, d)
}
