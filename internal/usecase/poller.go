package usecase

import (
	"context"
	"log/slog"
	"time"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/ports"
)

// Poller repeatedly observes the chat surface until something new shows up.
type Poller struct {
	interval time.Duration
	pacer    *Pacer
	logger   *slog.Logger
	now      func() time.Time
}

// NewPoller builds a poller ticking every interval.
func NewPoller(interval time.Duration, pacer *Pacer, logger *slog.Logger) *Poller {
	return &Poller{interval: interval, pacer: pacer, logger: logger, now: time.Now}
}

// Interval returns the tick period used for image polling.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Wait calls check once per tick until it reports done, returns an error, or the
// deadline passes (domain.ErrTimedOut). The deadline is only checked between ticks,
// so a tick that starts before the deadline always runs to completion.
func (p *Poller) Wait(ctx context.Context, deadline time.Time, interval time.Duration, check func(context.Context) (bool, error)) error {
	for p.now().Before(deadline) {
		if err := p.pacer.Jitter(ctx); err != nil {
			return err
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if err := p.pacer.Pause(ctx, interval); err != nil {
			return err
		}
	}
	return domain.ErrTimedOut
}

// PollForNewResult returns the newest result id not yet in seen and records it there.
// Only the returned id is recorded; other unseen ids stay eligible for later calls.
func (p *Poller) PollForNewResult(ctx context.Context, source ports.ResultSource, seen *domain.SeenSet, deadline time.Time) (string, error) {
	var found string
	err := p.Wait(ctx, deadline, p.interval, func(ctx context.Context) (bool, error) {
		ids, err := source.ImageResults(ctx)
		if err != nil {
			if domain.Fatal(err) || ctx.Err() != nil {
				return false, err
			}
			p.warn("observe results failed, retrying", "error", err)
			return false, nil
		}

		id, ok := newestUnseen(ids, seen)
		if !ok {
			p.debug("no new result yet", "visible", len(ids))
			return false, nil
		}
		seen.Add(id)
		found = id
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}

// newestUnseen walks ids in reverse display order, newest first.
func newestUnseen(ids []string, seen *domain.SeenSet) (string, bool) {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == "" || seen.Has(ids[i]) {
			continue
		}
		return ids[i], true
	}
	return "", false
}

func (p *Poller) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Poller) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
