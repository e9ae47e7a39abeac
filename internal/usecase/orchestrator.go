package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/ports"
)

// Run modes stored in the ledger.
const (
	ModeSprite = "sprite"
	ModeBatch  = "batch"
)

// OrchestratorDeps wires sessions and the optional ledger into the retry loop.
type OrchestratorDeps struct {
	Generation    *GenerationSession
	Validation    *ValidationSession
	Ledger        ports.AttemptLedger
	Logger        *slog.Logger
	Prompt        string
	LocalAttempts int
}

// CycleReport summarizes one generation+validation cycle.
type CycleReport struct {
	Attempt     int
	Generation  GenerationState
	Reason      domain.RejectionReason
	Submissions int
	Verdict     domain.Verdict
	Artifact    string
	Err         string
}

// RunReport is the top-level result; exhaustion is reported here, never returned as an error.
type RunReport struct {
	RunID      string
	Validated  bool
	Attempts   int
	OutputPath string
	Cycles     []CycleReport
}

// Orchestrator coordinates generation and validation across bounded attempts.
type Orchestrator struct {
	generation    *GenerationSession
	validation    *ValidationSession
	ledger        ports.AttemptLedger
	logger        *slog.Logger
	prompt        string
	localAttempts int
	newRunID      func() string
}

// NewOrchestrator constructs the retry loop.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		generation:    deps.Generation,
		validation:    deps.Validation,
		ledger:        deps.Ledger,
		logger:        deps.Logger,
		prompt:        deps.Prompt,
		localAttempts: deps.LocalAttempts,
		newRunID:      uuid.NewString,
	}
}

// Run performs at most maxAttempts cycles, each with a fresh generation session.
// Only unrecoverable preconditions (missing input, missing upload control) and
// context cancellation are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, referencePath string, maxAttempts int) (RunReport, error) {
	report := RunReport{RunID: o.newRunID()}

	if _, err := os.Stat(referencePath); err != nil {
		return report, fmt.Errorf("reference image %s: %w", referencePath, domain.ErrInputMissing)
	}

	session := domain.RetrySession{MaxAttempts: maxAttempts}
	o.startRun(ctx, domain.RunRecord{
		ID:            report.RunID,
		Mode:          ModeSprite,
		ReferencePath: referencePath,
		MaxAttempts:   maxAttempts,
		StartedAt:     time.Now().UTC(),
	})

	for !session.Validated && !session.Exhausted() {
		attempt := session.CurrentAttempt
		session.CurrentAttempt++
		cycle := CycleReport{Attempt: attempt}
		o.info("starting attempt", "attempt", attempt+1, "max_attempts", maxAttempts)

		gen, err := o.generation.Generate(ctx, GenerationRequest{
			Attempt:       attempt,
			ReferencePath: referencePath,
			Prompt:        o.prompt,
			LocalAttempts: o.localAttempts,
		})
		cycle.Generation, cycle.Reason, cycle.Submissions = gen.State, gen.Reason, gen.Submissions
		if err != nil {
			cycle.Err = err.Error()
			report.Cycles = append(report.Cycles, cycle)
			o.record(ctx, report.RunID, attempt, domain.StageGeneration, "error", "", err.Error())
			if domain.Fatal(err) || ctx.Err() != nil {
				o.finish(ctx, &report, session)
				return report, err
			}
			o.warn("generation session failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}
		o.record(ctx, report.RunID, attempt, domain.StageGeneration, string(gen.State), gen.Artifact.LocalPath, "")

		if gen.State != StateDone {
			report.Cycles = append(report.Cycles, cycle)
			o.info("retrying generation due to missing transparency", "attempt", attempt+1)
			continue
		}
		cycle.Artifact = gen.Artifact.LocalPath

		verdict, err := o.validation.Validate(ctx, attempt, gen.Artifact.LocalPath)
		cycle.Verdict = verdict.Verdict
		if verdict.QuarantinePath != "" {
			cycle.Artifact = verdict.QuarantinePath
		}
		if err != nil {
			cycle.Err = err.Error()
			report.Cycles = append(report.Cycles, cycle)
			o.record(ctx, report.RunID, attempt, domain.StageValidation, "error", cycle.Artifact, err.Error())
			if domain.Fatal(err) || ctx.Err() != nil {
				o.finish(ctx, &report, session)
				return report, err
			}
			o.warn("validation session failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}
		report.Cycles = append(report.Cycles, cycle)
		o.record(ctx, report.RunID, attempt, domain.StageValidation, string(verdict.Verdict), cycle.Artifact, verdict.Text)

		switch verdict.Verdict {
		case domain.VerdictPass:
			session.Validated = true
			report.OutputPath = gen.Artifact.LocalPath
		case domain.VerdictFail:
			o.info("retrying generation due to validation failure", "attempt", attempt+1)
		default:
			o.info("retrying generation due to inconclusive validation", "attempt", attempt+1)
		}
	}

	o.finish(ctx, &report, session)
	if !report.Validated {
		o.warn("no validated image after all attempts", "attempts", report.Attempts)
	}
	return report, nil
}

func (o *Orchestrator) finish(ctx context.Context, report *RunReport, session domain.RetrySession) {
	report.Validated = session.Validated
	report.Attempts = session.CurrentAttempt
	if o.ledger == nil {
		return
	}
	if err := o.ledger.FinishRun(context.WithoutCancel(ctx), report.RunID, report.Validated, report.Attempts); err != nil {
		o.warn("ledger finish run failed", "error", err)
	}
}

func (o *Orchestrator) startRun(ctx context.Context, run domain.RunRecord) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.StartRun(ctx, run); err != nil {
		o.warn("ledger start run failed", "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, runID string, attempt int, stage, outcome, artifact, text string) {
	if o.ledger == nil {
		return
	}
	err := o.ledger.SaveAttempt(context.WithoutCancel(ctx), domain.AttemptRecord{
		RunID:        runID,
		Attempt:      attempt,
		Stage:        stage,
		Outcome:      outcome,
		ArtifactPath: artifact,
		VerdictText:  text,
		RecordedAt:   time.Now().UTC(),
	})
	if err != nil {
		o.warn("ledger save attempt failed", "error", err)
	}
}

func (o *Orchestrator) info(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
