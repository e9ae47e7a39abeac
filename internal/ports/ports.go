package ports

import (
	"context"

	"SpriteForge/internal/config"
	"SpriteForge/internal/domain"
)

// ResultSource enumerates produced-image identifiers in display order (oldest first).
type ResultSource interface {
	ImageResults(ctx context.Context) ([]string, error)
}

// ChatSurface is the capability contract of the external chat UI.
// A single surface is shared sequentially by all sessions.
type ChatSurface interface {
	ResultSource
	Open(ctx context.Context, url string) error
	// UploadFile attaches a local file; it fails with domain.ErrElementNotFound
	// when the page has no upload control.
	UploadFile(ctx context.Context, path string) error
	TypePrompt(ctx context.Context, text string) error
	Submit(ctx context.Context) error
	LatestResponse(ctx context.Context) (string, error)
	Close() error
}

// SurfaceLauncher starts the browser-backed surface.
type SurfaceLauncher func(ctx context.Context, cfg config.BrowserConfig, sel config.SelectorConfig) (ChatSurface, error)

// ImageFetcher downloads a remote image to a local path.
type ImageFetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// ArtifactStore owns the scratch, output and quarantine paths.
type ArtifactStore interface {
	TempPath(tag string) string
	Promote(tag string) (string, error)
	QuarantineTransparency(src string, n int) (string, error)
	QuarantineValidation(src string, n int, verdict string) (string, error)
}

// AttemptLedger persists run and attempt history for postmortems.
type AttemptLedger interface {
	StartRun(ctx context.Context, run domain.RunRecord) error
	SaveAttempt(ctx context.Context, attempt domain.AttemptRecord) error
	FinishRun(ctx context.Context, runID string, validated bool, attempts int) error
}

// Notifier streams the final run report to an outbound channel.
type Notifier interface {
	PublishReport(ctx context.Context, report string) error
}
