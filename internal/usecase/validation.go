package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/ports"
)

// ValidationSettings configure the critic workflow.
type ValidationSettings struct {
	Endpoint    string
	Instruction string
	PassMarker  string
	FailMarker  string
	Interval    time.Duration
	Timeout     time.Duration
	SettleDelay time.Duration
}

// ValidationDeps wires the collaborators of a validation session.
type ValidationDeps struct {
	Surface  ports.ChatSurface
	Store    ports.ArtifactStore
	Poller   *Poller
	Pacer    *Pacer
	Logger   *slog.Logger
	Settings ValidationSettings
}

// ValidationSession asks the critic chat for a PASS/FAIL verdict.
type ValidationSession struct {
	surface  ports.ChatSurface
	store    ports.ArtifactStore
	poller   *Poller
	pacer    *Pacer
	logger   *slog.Logger
	settings ValidationSettings
}

// NewValidationSession constructs the critic session.
func NewValidationSession(deps ValidationDeps) *ValidationSession {
	return &ValidationSession{
		surface:  deps.Surface,
		store:    deps.Store,
		poller:   deps.Poller,
		pacer:    deps.Pacer,
		logger:   deps.Logger,
		settings: deps.Settings,
	}
}

// Validate submits artifactPath to the critic and reads its verdict. A Fail verdict
// quarantines the artifact with the critic text; no verdict in time yields Unknown.
func (v *ValidationSession) Validate(ctx context.Context, attempt int, artifactPath string) (domain.ValidationVerdict, error) {
	unknown := domain.ValidationVerdict{Verdict: domain.VerdictUnknown}

	if err := v.surface.Open(ctx, v.settings.Endpoint); err != nil {
		return unknown, &domain.StageError{Stage: "open validation", Err: err}
	}
	if err := v.surface.UploadFile(ctx, artifactPath); err != nil {
		return unknown, &domain.StageError{Stage: "upload artifact", Err: err}
	}
	if err := v.pacer.Pause(ctx, v.settings.SettleDelay); err != nil {
		return unknown, err
	}
	if err := v.pacer.Jitter(ctx); err != nil {
		return unknown, err
	}
	if err := v.surface.TypePrompt(ctx, v.settings.Instruction); err != nil {
		return unknown, &domain.StageError{Stage: "type instruction", Err: err}
	}
	if err := v.surface.Submit(ctx); err != nil {
		return unknown, &domain.StageError{Stage: "submit instruction", Err: err}
	}
	v.info("image sent for validation", "attempt", attempt, "path", artifactPath)

	verdict := unknown
	deadline := v.poller.now().Add(v.settings.Timeout)
	err := v.poller.Wait(ctx, deadline, v.settings.Interval, func(ctx context.Context) (bool, error) {
		text, err := v.surface.LatestResponse(ctx)
		if err != nil {
			if domain.Fatal(err) || ctx.Err() != nil {
				return false, err
			}
			v.warn("read critic response failed, retrying", "error", err)
			return false, nil
		}
		if got, ok := v.classify(text); ok {
			verdict = domain.ValidationVerdict{Verdict: got, Text: text}
			return true, nil
		}
		return false, nil
	})
	if errors.Is(err, domain.ErrTimedOut) {
		v.warn("no verdict within timeout", "attempt", attempt, "timeout", v.settings.Timeout)
		return unknown, nil
	}
	if err != nil {
		return unknown, err
	}

	if verdict.Verdict == domain.VerdictFail {
		moved, err := v.store.QuarantineValidation(artifactPath, attempt, verdict.Text)
		if err != nil {
			return verdict, fmt.Errorf("quarantine failed artifact: %w", err)
		}
		verdict.QuarantinePath = moved
		v.warn("validation failed", "attempt", attempt, "quarantine", moved)
		return verdict, nil
	}

	v.info("validation passed", "attempt", attempt)
	return verdict, nil
}

// classify checks the pass marker first, like the critic prompt expects.
func (v *ValidationSession) classify(text string) (domain.Verdict, bool) {
	switch {
	case v.settings.PassMarker != "" && strings.Contains(text, v.settings.PassMarker):
		return domain.VerdictPass, true
	case v.settings.FailMarker != "" && strings.Contains(text, v.settings.FailMarker):
		return domain.VerdictFail, true
	default:
		return domain.VerdictUnknown, false
	}
}

func (v *ValidationSession) info(msg string, args ...interface{}) {
	if v.logger != nil {
		v.logger.Info(msg, args...)
	}
}

func (v *ValidationSession) warn(msg string, args ...interface{}) {
	if v.logger != nil {
		v.logger.Warn(msg, args...)
	}
}
