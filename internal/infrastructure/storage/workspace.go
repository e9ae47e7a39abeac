package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"SpriteForge/internal/ports"
)

// QuarantineDir is the sub-directory holding rejected artifacts.
const QuarantineDir = "FAIL"

// Workspace lays out scratch, accepted and quarantined images under one directory.
// Sessions run sequentially, so every path has a single writer at a time.
type Workspace struct {
	basePath string
}

var _ ports.ArtifactStore = (*Workspace)(nil)

// NewWorkspace creates basePath and its quarantine directory.
func NewWorkspace(basePath string) (*Workspace, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("workspace: base path is required")
	}
	if err := os.MkdirAll(filepath.Join(basePath, QuarantineDir), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: ensure directories: %w", err)
	}
	return &Workspace{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (w *Workspace) BasePath() string {
	if w == nil {
		return ""
	}
	return w.basePath
}

// TempPath is where a candidate is downloaded before classification.
func (w *Workspace) TempPath(tag string) string {
	return filepath.Join(w.basePath, "tmp-output"+tag+".png")
}

// OutputPath is the canonical location of an accepted artifact.
func (w *Workspace) OutputPath(tag string) string {
	return filepath.Join(w.basePath, "output"+tag+".png")
}

// Promote renames the scratch file for tag to its output path.
func (w *Workspace) Promote(tag string) (string, error) {
	dest := w.OutputPath(tag)
	if err := os.Rename(w.TempPath(tag), dest); err != nil {
		return "", fmt.Errorf("workspace: promote: %w", err)
	}
	return dest, nil
}

// QuarantineTransparency moves src to FAIL/fail_transparency_<n>.png.
func (w *Workspace) QuarantineTransparency(src string, n int) (string, error) {
	dest := w.quarantinePath("transparency", n, ".png")
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("workspace: quarantine: %w", err)
	}
	return dest, nil
}

// QuarantineValidation moves src to FAIL/fail_validation_<n>.png and stores the
// critic text next to it.
func (w *Workspace) QuarantineValidation(src string, n int, verdict string) (string, error) {
	dest := w.quarantinePath("validation", n, ".png")
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("workspace: quarantine: %w", err)
	}
	logPath := w.quarantinePath("validation", n, ".txt")
	if err := os.WriteFile(logPath, []byte(verdict), 0o644); err != nil {
		return dest, fmt.Errorf("workspace: write verdict log: %w", err)
	}
	return dest, nil
}

func (w *Workspace) quarantinePath(kind string, n int, ext string) string {
	return filepath.Join(w.basePath, QuarantineDir, fmt.Sprintf("fail_%s_%d%s", kind, n, ext))
}
