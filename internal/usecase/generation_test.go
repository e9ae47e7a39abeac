package usecase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SpriteForge/internal/config"
	"SpriteForge/internal/domain"
	"SpriteForge/internal/infrastructure/storage"
)

func TestGenerateCorrectiveResubmission(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	transparent := sprite(t, 60)
	fx.chat.images = [][]byte{sprite(t, 0), transparent}
	ref := writeReference(t, t.TempDir())

	res, err := fx.gen.Generate(context.Background(), GenerationRequest{
		ReferencePath: ref,
		Prompt:        "Generate a movesheet of this character based on this reference.",
		LocalAttempts: 2,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if res.State != StateDone {
		t.Fatalf("expected done, got %s (%v)", res.State, res.Rejections)
	}
	if res.Submissions != 2 {
		t.Fatalf("expected 2 submissions, got %d", res.Submissions)
	}
	typed := fx.chat.submittedPrompts()
	if len(typed) != 2 || typed[1] != config.Default().Prompts.Corrective {
		t.Fatalf("expected exactly one corrective resubmission, got %v", typed)
	}
	if len(fx.chat.uploads) != 1 || fx.chat.uploads[0] != ref {
		t.Fatalf("reference should be uploaded once: %v", fx.chat.uploads)
	}

	got, err := os.ReadFile(res.Artifact.LocalPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, transparent) {
		t.Fatalf("output does not hold the second image")
	}
	if res.Artifact.LocalPath != fx.ws.OutputPath("") {
		t.Fatalf("unexpected output path: %s", res.Artifact.LocalPath)
	}
	if len(res.Quarantined) != 1 || filepath.Base(res.Quarantined[0]) != "fail_transparency_0.png" {
		t.Fatalf("opaque image should be quarantined: %v", res.Quarantined)
	}
}

func TestGenerateWaitsForCompleteDownload(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.chat.images = [][]byte{sprite(t, 80)}
	fx.fetcher.truncate["https://img.test/0.png"] = 2

	res, err := fx.gen.Generate(context.Background(), GenerationRequest{
		ReferencePath: writeReference(t, t.TempDir()),
		Prompt:        "pose",
		LocalAttempts: 2,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateDone || res.Submissions != 1 {
		t.Fatalf("expected done on first submission, got %s after %d", res.State, res.Submissions)
	}
	if fx.fetcher.calls != 3 {
		t.Fatalf("expected 3 downloads of the same candidate, got %d", fx.fetcher.calls)
	}
	if !res.Artifact.IsStructurallyComplete || res.Artifact.TransparencyRatio != 0.8 {
		t.Fatalf("unexpected artifact: %+v", res.Artifact)
	}
}

func TestGenerateExhaustsLocalAttempts(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.chat.images = [][]byte{sprite(t, 5)}

	res, err := fx.gen.Generate(context.Background(), GenerationRequest{
		Attempt:       3,
		ReferencePath: writeReference(t, t.TempDir()),
		Prompt:        "pose",
		LocalAttempts: 2,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateFailed || res.Reason != domain.RejectExhausted {
		t.Fatalf("expected failed/exhausted, got %s/%s", res.State, res.Reason)
	}
	if len(res.Rejections) != 2 || res.Rejections[0] != domain.RejectNoTransparency {
		t.Fatalf("unexpected rejections: %v", res.Rejections)
	}
	for _, name := range []string{"fail_transparency_6.png", "fail_transparency_7.png"} {
		if _, err := os.Stat(filepath.Join(fx.ws.BasePath(), storage.QuarantineDir, name)); err != nil {
			t.Fatalf("missing quarantine file %s: %v", name, err)
		}
	}
}

func TestGenerateUndecodableIsRejected(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	// Carries the trailer so it counts as complete, but is not an image.
	fx.chat.images = [][]byte{append([]byte("junk"), 0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82)}

	res, err := fx.gen.Generate(context.Background(), GenerationRequest{
		ReferencePath: writeReference(t, t.TempDir()),
		Prompt:        "pose",
		LocalAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateFailed || len(res.Rejections) != 1 || res.Rejections[0] != domain.RejectUndecodable {
		t.Fatalf("expected undecodable rejection, got %s %v", res.State, res.Rejections)
	}
}

func TestGenerateTimesOutWithoutImages(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.gen.settings.Timeout = 20 * time.Millisecond

	res, err := fx.gen.Generate(context.Background(), GenerationRequest{
		ReferencePath: writeReference(t, t.TempDir()),
		Prompt:        "pose",
		LocalAttempts: 2,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateFailed || res.Submissions != 2 {
		t.Fatalf("expected failed after 2 submissions, got %s/%d", res.State, res.Submissions)
	}
	for _, r := range res.Rejections {
		if r != domain.RejectTimedOut {
			t.Fatalf("expected timeouts, got %v", res.Rejections)
		}
	}
}

func TestGenerateMissingUploadControlIsFatal(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.chat.noUpload = true

	_, err := fx.gen.Generate(context.Background(), GenerationRequest{
		ReferencePath: writeReference(t, t.TempDir()),
		Prompt:        "pose",
		LocalAttempts: 2,
	})
	if !errors.Is(err, domain.ErrElementNotFound) || !domain.Fatal(err) {
		t.Fatalf("expected fatal ErrElementNotFound, got %v", err)
	}
	if len(fx.chat.submittedPrompts()) != 0 {
		t.Fatalf("no prompt should be typed without an upload")
	}
}

func TestGenerateSkipTransparencyAcceptsOpaque(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.chat.images = [][]byte{sprite(t, 0)}

	res, err := fx.gen.Generate(context.Background(), GenerationRequest{
		ReferencePath:    writeReference(t, t.TempDir()),
		Prompt:           "idle pose",
		Tag:              "0",
		LocalAttempts:    1,
		SkipTransparency: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateDone || filepath.Base(res.Artifact.LocalPath) != "output0.png" {
		t.Fatalf("expected output0.png, got %s %s", res.State, res.Artifact.LocalPath)
	}
}
