package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"SpriteForge/internal/config"
	"SpriteForge/internal/domain"
	"SpriteForge/internal/infrastructure/fetcher"
	"SpriteForge/internal/infrastructure/storage"
	"SpriteForge/internal/infrastructure/telegram"
	"SpriteForge/internal/logging"
	"SpriteForge/internal/ports"
	"SpriteForge/internal/usecase"
)

// Request is one invocation of the runner.
type Request struct {
	ReferencePath string
	// PromptsPath switches to batch mode when set.
	PromptsPath string
	Debug       bool
}

// Outcome carries the report of whichever mode ran.
type Outcome struct {
	Mode   string
	Sprite usecase.RunReport
	Batch  usecase.BatchReport
}

// Succeeded reports a validated sprite or a batch without failed lines.
func (o Outcome) Succeeded() bool {
	if o.Mode == usecase.ModeBatch {
		return o.Batch.Failed == 0 && len(o.Batch.Outputs) > 0
	}
	return o.Sprite.Validated
}

// Application wires configs to use cases and the browser lifecycle.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	launch ports.SurfaceLauncher
	fetch  ports.ImageFetcher
}

// New builds a runnable application; launch starts the chat surface on demand.
func New(cfg config.Config, baseLogger *slog.Logger, launch ports.SurfaceLauncher) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		launch: launch,
		fetch:  fetcher.NewHTTPFetcher(nil),
	}
}

// Run checks the inputs, launches the browser and executes the selected mode.
// Inputs are checked before the browser starts so a typo never opens Chrome.
func (a *Application) Run(ctx context.Context, req Request) (Outcome, error) {
	outcome := Outcome{Mode: usecase.ModeSprite}

	if _, err := os.Stat(req.ReferencePath); err != nil {
		return outcome, fmt.Errorf("reference image %s: %w", req.ReferencePath, domain.ErrInputMissing)
	}
	var prompts domain.Prompt
	if req.PromptsPath != "" {
		outcome.Mode = usecase.ModeBatch
		raw, err := os.ReadFile(req.PromptsPath)
		if err != nil {
			return outcome, fmt.Errorf("prompts file %s: %w", req.PromptsPath, domain.ErrInputMissing)
		}
		prompts = domain.ParsePrompt(string(raw))
		if prompts.Len() == 0 {
			return outcome, fmt.Errorf("prompts file %s is empty: %w", req.PromptsPath, domain.ErrInputMissing)
		}
	}

	ws, err := storage.NewWorkspace(a.cfg.Output.Dir)
	if err != nil {
		return outcome, err
	}

	ledger, closeLedger := a.openLedger(ctx)
	defer closeLedger()

	if a.launch == nil {
		return outcome, errors.New("no browser launcher configured")
	}
	surface, err := a.launch(ctx, a.cfg.Browser, a.cfg.Selectors)
	if err != nil {
		return outcome, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := surface.Close(); err != nil {
			a.logger.Warn("close browser", "error", err)
		}
	}()

	jitter := a.cfg.Jitter
	jitter.Enabled = jitter.Enabled || req.Debug
	pacer := newPacer(jitter, a.logger)
	poller := usecase.NewPoller(a.cfg.Polling.GenerationInterval, pacer, a.logger.With("component", "poller"))

	generation := usecase.NewGenerationSession(usecase.GenerationDeps{
		Surface: surface,
		Fetcher: a.fetch,
		Store:   ws,
		Poller:  poller,
		Pacer:   pacer,
		Logger:  a.logger.With("component", "generation"),
		Settings: usecase.GenerationSettings{
			Endpoint:         a.cfg.Endpoints.Generation,
			CorrectivePrompt: a.cfg.Prompts.Corrective,
			Timeout:          a.cfg.Polling.Timeout,
			SettleDelay:      a.cfg.Polling.SettleDelay,
		},
	})

	if outcome.Mode == usecase.ModeBatch {
		batch := usecase.NewBatch(usecase.BatchDeps{
			Generation: generation,
			Ledger:     ledger,
			Logger:     a.logger.With("component", "batch"),
		})
		outcome.Batch, err = batch.Run(ctx, req.ReferencePath, prompts)
		a.notify(ctx, outcome, err)
		return outcome, err
	}

	validation := usecase.NewValidationSession(usecase.ValidationDeps{
		Surface: surface,
		Store:   ws,
		Poller:  poller,
		Pacer:   pacer,
		Logger:  a.logger.With("component", "validation"),
		Settings: usecase.ValidationSettings{
			Endpoint:    a.cfg.Endpoints.Validation,
			Instruction: a.cfg.Prompts.Validation,
			PassMarker:  a.cfg.Prompts.PassMarker,
			FailMarker:  a.cfg.Prompts.FailMarker,
			Interval:    a.cfg.Polling.ValidationInterval,
			Timeout:     a.cfg.Polling.Timeout,
			SettleDelay: a.cfg.Polling.SettleDelay,
		},
	})
	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Generation:    generation,
		Validation:    validation,
		Ledger:        ledger,
		Logger:        a.logger.With("component", "orchestrator"),
		Prompt:        a.cfg.Prompts.Generation,
		LocalAttempts: a.cfg.Retry.LocalAttempts,
	})
	outcome.Sprite, err = orchestrator.Run(ctx, req.ReferencePath, a.cfg.Retry.MaxAttempts)
	a.notify(ctx, outcome, err)
	return outcome, err
}

// newPacer builds the shared pacer, logging when jitter is active.
func newPacer(jitter config.JitterConfig, logger *slog.Logger) *usecase.Pacer {
	if jitter.Enabled {
		logger.Info("debug pauses enabled", "min", jitter.Min, "max", jitter.Max)
	}
	return usecase.NewPacer(jitter, logger.With("component", "pacer"))
}

// openLedger connects the optional Postgres ledger. A database that cannot be
// reached only disables the ledger.
func (a *Application) openLedger(ctx context.Context) (ports.AttemptLedger, func()) {
	if a.cfg.Database.DSN == "" {
		return nil, func() {}
	}
	ledger, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
	if err != nil {
		a.logger.Warn("attempt ledger disabled", "error", err)
		return nil, func() {}
	}
	return ledger, func() {
		if err := ledger.Close(); err != nil {
			a.logger.Warn("close ledger", "error", err)
		}
	}
}

func (a *Application) notify(ctx context.Context, outcome Outcome, runErr error) {
	tg := a.cfg.Notifications.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		return
	}
	var notifier ports.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	if err := notifier.PublishReport(context.WithoutCancel(ctx), Summarize(outcome, runErr)); err != nil {
		a.logger.Warn("publish run report", "error", err)
	}
}

// Summarize renders a short human-readable report of the run.
func Summarize(outcome Outcome, runErr error) string {
	var b strings.Builder
	if outcome.Mode == usecase.ModeBatch {
		r := outcome.Batch
		fmt.Fprintf(&b, "SpriteForge batch %s: %d/%d images", r.RunID, len(r.Outputs)-r.Failed, len(r.Outputs))
		for i, out := range r.Outputs {
			if out == "" {
				fmt.Fprintf(&b, "\n%d: failed", i)
				continue
			}
			fmt.Fprintf(&b, "\n%d: %s", i, out)
		}
	} else {
		r := outcome.Sprite
		status := "exhausted"
		if r.Validated {
			status = "validated"
		}
		fmt.Fprintf(&b, "SpriteForge run %s: %s after %d attempt(s)", r.RunID, status, r.Attempts)
		if r.OutputPath != "" {
			fmt.Fprintf(&b, "\noutput: %s", r.OutputPath)
		}
		for _, c := range r.Cycles {
			fmt.Fprintf(&b, "\n#%d generation=%s", c.Attempt+1, c.Generation)
			if c.Verdict != "" {
				fmt.Fprintf(&b, " verdict=%s", c.Verdict)
			}
			if c.Err != "" {
				fmt.Fprintf(&b, " error=%s", c.Err)
			}
		}
	}
	if runErr != nil {
		fmt.Fprintf(&b, "\nerror: %v", runErr)
	}
	return b.String()
}
