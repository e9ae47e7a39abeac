package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/ports"
)

// BatchDeps wires the batch runner.
type BatchDeps struct {
	Generation *GenerationSession
	Ledger     ports.AttemptLedger
	Logger     *slog.Logger
}

// BatchReport lists one output path per prompt line; failed lines keep an empty path.
type BatchReport struct {
	RunID   string
	Outputs []string
	Failed  int
}

// Batch generates one image per prompt line inside a single conversation.
type Batch struct {
	generation *GenerationSession
	ledger     ports.AttemptLedger
	logger     *slog.Logger
	newRunID   func() string
}

// NewBatch constructs the batch runner.
func NewBatch(deps BatchDeps) *Batch {
	return &Batch{
		generation: deps.Generation,
		ledger:     deps.Ledger,
		logger:     deps.Logger,
		newRunID:   uuid.NewString,
	}
}

// Run uploads the reference once and submits every prompt line in order. All
// lines share one seen set so an image produced for line i is never taken for
// line i+1. Lines without an image in time are counted as failed.
func (b *Batch) Run(ctx context.Context, referencePath string, prompts domain.Prompt) (BatchReport, error) {
	report := BatchReport{RunID: b.newRunID(), Outputs: make([]string, prompts.Len())}

	if _, err := os.Stat(referencePath); err != nil {
		return report, fmt.Errorf("reference image %s: %w", referencePath, domain.ErrInputMissing)
	}
	if prompts.Len() == 0 {
		return report, fmt.Errorf("prompts file has no instructions: %w", domain.ErrInputMissing)
	}

	if b.ledger != nil {
		err := b.ledger.StartRun(ctx, domain.RunRecord{
			ID:            report.RunID,
			Mode:          ModeBatch,
			ReferencePath: referencePath,
			MaxAttempts:   prompts.Len(),
			StartedAt:     time.Now().UTC(),
		})
		if err != nil {
			b.warn("ledger start run failed", "error", err)
		}
	}

	seen := domain.NewSeenSet()
	opened := false
	for i := 0; i < prompts.Len(); i++ {
		b.info("prompt", "index", i+1, "total", prompts.Len(), "prompt", prompts.Line(i))

		res, err := b.generation.Generate(ctx, GenerationRequest{
			Attempt:          i,
			ReferencePath:    referencePath,
			Prompt:           prompts.Line(i),
			Tag:              strconv.Itoa(i),
			LocalAttempts:    1,
			Seen:             seen,
			Continue:         opened,
			SkipTransparency: true,
		})
		if err != nil {
			b.record(ctx, report.RunID, i, "error", "", err.Error())
			if domain.Fatal(err) || ctx.Err() != nil || !opened {
				b.finish(ctx, &report, prompts.Len())
				return report, err
			}
			report.Failed++
			b.warn("prompt failed", "index", i+1, "error", err)
			continue
		}
		opened = true

		if res.State != StateDone {
			report.Failed++
			b.record(ctx, report.RunID, i, string(res.State), "", "")
			b.warn("no image for prompt", "index", i+1, "reason", res.Rejections)
			continue
		}
		report.Outputs[i] = res.Artifact.LocalPath
		b.record(ctx, report.RunID, i, string(res.State), res.Artifact.LocalPath, "")
		b.info("image saved", "index", i+1, "path", res.Artifact.LocalPath)
	}

	b.finish(ctx, &report, prompts.Len())
	return report, nil
}

func (b *Batch) finish(ctx context.Context, report *BatchReport, total int) {
	if b.ledger == nil {
		return
	}
	done := report.Failed == 0 && total > 0
	for _, out := range report.Outputs {
		if out == "" {
			done = false
		}
	}
	if err := b.ledger.FinishRun(context.WithoutCancel(ctx), report.RunID, done, total); err != nil {
		b.warn("ledger finish run failed", "error", err)
	}
}

func (b *Batch) record(ctx context.Context, runID string, index int, outcome, artifact, text string) {
	if b.ledger == nil {
		return
	}
	err := b.ledger.SaveAttempt(context.WithoutCancel(ctx), domain.AttemptRecord{
		RunID:        runID,
		Attempt:      index,
		Stage:        domain.StageBatch,
		Outcome:      outcome,
		ArtifactPath: artifact,
		VerdictText:  text,
		RecordedAt:   time.Now().UTC(),
	})
	if err != nil {
		b.warn("ledger save attempt failed", "error", err)
	}
}

func (b *Batch) info(msg string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Batch) warn(msg string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
