package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/pngcheck"
	"SpriteForge/internal/ports"
)

// GenerationState is a step of one generation session.
type GenerationState string

const (
	StateAwaitingSubmission GenerationState = "awaiting_submission"
	StateAwaitingImage      GenerationState = "awaiting_image"
	StateDownloading        GenerationState = "downloading"
	StateValidating         GenerationState = "validating"
	StateDone               GenerationState = "done"
	StateRejected           GenerationState = "rejected"
	StateFailed             GenerationState = "failed"
)

// GenerationSettings are the per-workflow constants of the generation surface.
type GenerationSettings struct {
	Endpoint         string
	CorrectivePrompt string
	Timeout          time.Duration
	SettleDelay      time.Duration
}

// GenerationDeps wires the collaborators of a generation session.
type GenerationDeps struct {
	Surface  ports.ChatSurface
	Fetcher  ports.ImageFetcher
	Store    ports.ArtifactStore
	Poller   *Poller
	Pacer    *Pacer
	Logger   *slog.Logger
	Settings GenerationSettings
}

// GenerationRequest describes one prompt→image round.
type GenerationRequest struct {
	// Attempt is the caller's attempt index; it tags quarantined files.
	Attempt       int
	ReferencePath string
	Prompt        string
	// Tag suffixes tmp-output/output file names.
	Tag string
	// LocalAttempts bounds submissions within this session (initial + corrective).
	LocalAttempts int
	// Seen is shared by callers that keep one conversation open; nil starts fresh.
	Seen *domain.SeenSet
	// Continue skips navigation and upload, reusing the open conversation.
	Continue bool
	// SkipTransparency accepts any structurally complete image.
	SkipTransparency bool
}

// GenerationResult is the terminal outcome of a session.
type GenerationResult struct {
	State       GenerationState
	Artifact    domain.ImageArtifact
	Reason      domain.RejectionReason
	Rejections  []domain.RejectionReason
	Submissions int
	Quarantined []string
}

// GenerationSession submits prompts and waits for a usable image.
type GenerationSession struct {
	surface  ports.ChatSurface
	fetcher  ports.ImageFetcher
	store    ports.ArtifactStore
	poller   *Poller
	pacer    *Pacer
	logger   *slog.Logger
	settings GenerationSettings
}

// NewGenerationSession constructs the session component.
func NewGenerationSession(deps GenerationDeps) *GenerationSession {
	return &GenerationSession{
		surface:  deps.Surface,
		fetcher:  deps.Fetcher,
		store:    deps.Store,
		poller:   deps.Poller,
		pacer:    deps.Pacer,
		logger:   deps.Logger,
		settings: deps.Settings,
	}
}

// Generate runs up to req.LocalAttempts submissions. A rejected or timed-out
// submission is followed by the corrective prompt; running out of submissions
// ends in StateFailed with RejectExhausted. Returned errors abort the session.
func (g *GenerationSession) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	result := GenerationResult{State: StateAwaitingSubmission}

	seen := req.Seen
	if seen == nil {
		seen = domain.NewSeenSet()
	}
	limit := req.LocalAttempts
	if limit < 1 {
		limit = 1
	}

	if !req.Continue {
		if err := g.openConversation(ctx, req.ReferencePath); err != nil {
			return result, err
		}
	}

	prompt := req.Prompt
	for local := 0; local < limit; local++ {
		if local > 0 {
			prompt = g.settings.CorrectivePrompt
			g.info("resubmitting with corrective prompt", "attempt", req.Attempt, "local_attempt", local)
		}

		attempt := domain.GenerationAttempt{Index: local, Prompt: prompt, Seen: seen, Status: domain.AttemptPending}
		if err := g.submit(ctx, attempt.Prompt); err != nil {
			return result, err
		}
		result.Submissions++

		artifact, reason, quarantined, err := g.awaitArtifact(ctx, req, &attempt)
		if err != nil {
			return result, err
		}
		if quarantined != "" {
			result.Quarantined = append(result.Quarantined, quarantined)
		}
		if reason == domain.RejectNone {
			result.State = StateDone
			result.Artifact = artifact
			g.info("image accepted", "attempt", req.Attempt, "path", artifact.LocalPath, "transparency", artifact.TransparencyRatio)
			return result, nil
		}

		result.State = StateRejected
		result.Rejections = append(result.Rejections, reason)
		g.info("image rejected", "attempt", req.Attempt, "local_attempt", local, "reason", reason)
	}

	result.State = StateFailed
	result.Reason = domain.RejectExhausted
	g.warn("no usable image after local attempts", "attempt", req.Attempt, "submissions", result.Submissions)
	return result, nil
}

func (g *GenerationSession) openConversation(ctx context.Context, referencePath string) error {
	if err := g.pacer.Jitter(ctx); err != nil {
		return err
	}
	if err := g.surface.Open(ctx, g.settings.Endpoint); err != nil {
		return &domain.StageError{Stage: "open generation", Err: err}
	}
	if err := g.pacer.Jitter(ctx); err != nil {
		return err
	}
	if err := g.surface.UploadFile(ctx, referencePath); err != nil {
		return &domain.StageError{Stage: "upload reference", Err: err}
	}
	return nil
}

func (g *GenerationSession) submit(ctx context.Context, prompt string) error {
	g.info("submitting prompt", "prompt", prompt)
	if err := g.surface.TypePrompt(ctx, prompt); err != nil {
		return &domain.StageError{Stage: "type prompt", Err: err}
	}
	if err := g.pacer.Pause(ctx, g.settings.SettleDelay); err != nil {
		return err
	}
	if err := g.pacer.Jitter(ctx); err != nil {
		return err
	}
	if err := g.surface.Submit(ctx); err != nil {
		return &domain.StageError{Stage: "submit prompt", Err: err}
	}
	return nil
}

// awaitArtifact polls for a new image, downloads it until complete and classifies it.
// It returns the rejection reason (RejectNone on success) and any quarantine path.
func (g *GenerationSession) awaitArtifact(ctx context.Context, req GenerationRequest, attempt *domain.GenerationAttempt) (domain.ImageArtifact, domain.RejectionReason, string, error) {
	deadline := g.poller.now().Add(g.settings.Timeout)
	g.debug("state", "state", StateAwaitingImage, "deadline", deadline.Format(time.RFC3339))

	url, err := g.poller.PollForNewResult(ctx, g.surface, attempt.Seen, deadline)
	if errors.Is(err, domain.ErrTimedOut) {
		attempt.Status = domain.AttemptTimedOut
		return domain.ImageArtifact{}, domain.RejectTimedOut, "", nil
	}
	if err != nil {
		return domain.ImageArtifact{}, domain.RejectNone, "", err
	}
	attempt.Status = domain.AttemptFound
	g.debug("state", "state", StateDownloading, "url", url)

	tmp := g.store.TempPath(req.Tag)
	var (
		artifact  domain.ImageArtifact
		decodeErr error
	)
	// An incomplete download means the image is still being produced: fetch the
	// same candidate again on the next tick, inside the same deadline.
	err = g.poller.Wait(ctx, deadline, g.poller.Interval(), func(ctx context.Context) (bool, error) {
		if err := g.fetcher.Fetch(ctx, url, tmp); err != nil {
			if errors.Is(err, domain.ErrNetwork) {
				g.warn("download failed, retrying", "error", err)
				return false, nil
			}
			return false, err
		}

		a, err := g.classify(tmp, req.SkipTransparency)
		if errors.Is(err, domain.ErrDecode) {
			artifact, decodeErr = a, err
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if !a.IsStructurallyComplete {
			g.info("image still rendering", "bytes", a.ByteSize)
			return false, nil
		}
		artifact = a
		return true, nil
	})
	if errors.Is(err, domain.ErrTimedOut) {
		attempt.Status = domain.AttemptTimedOut
		return domain.ImageArtifact{}, domain.RejectTimedOut, "", nil
	}
	if err != nil {
		return domain.ImageArtifact{}, domain.RejectNone, "", err
	}
	g.debug("state", "state", StateValidating, "bytes", artifact.ByteSize)

	reason := domain.RejectNone
	switch {
	case decodeErr != nil:
		reason = domain.RejectUndecodable
	case !req.SkipTransparency && !pngcheck.SufficientRatio(artifact.TransparencyRatio):
		reason = domain.RejectNoTransparency
	}

	if reason != domain.RejectNone {
		limit := req.LocalAttempts
		if limit < 1 {
			limit = 1
		}
		n := req.Attempt*limit + attempt.Index
		moved, err := g.store.QuarantineTransparency(tmp, n)
		if err != nil {
			return domain.ImageArtifact{}, reason, "", fmt.Errorf("quarantine rejected image: %w", err)
		}
		return artifact, reason, moved, nil
	}

	final, err := g.store.Promote(req.Tag)
	if err != nil {
		return domain.ImageArtifact{}, domain.RejectNone, "", err
	}
	artifact.LocalPath = final
	return artifact, domain.RejectNone, "", nil
}

func (g *GenerationSession) classify(path string, skipTransparency bool) (domain.ImageArtifact, error) {
	if skipTransparency {
		a, _, err := pngcheck.Stat(path)
		return a, err
	}
	return pngcheck.Inspect(path)
}

func (g *GenerationSession) debug(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}

func (g *GenerationSession) info(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}

func (g *GenerationSession) warn(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
