package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"testing"
	"time"

	"SpriteForge/internal/config"
	"SpriteForge/internal/domain"
	"SpriteForge/internal/infrastructure/storage"
	"SpriteForge/internal/logging"
)

const (
	genURL = "https://chat.test/g/char-move"
	valURL = "https://chat.test/g/qa-move"
)

// fakeChat plays both chat workflows. Each submit in the generation workflow
// makes the next queued image visible; each submit in the critic workflow makes
// the next queued verdict the latest response.
type fakeChat struct {
	mu sync.Mutex

	images   [][]byte
	verdicts []string
	noUpload bool

	current  string
	visible  []string
	response string
	produced int
	judged   int

	opens   []string
	uploads []string
	typed   []string
	blobs   map[string][]byte
}

func newFakeChat() *fakeChat {
	return &fakeChat{blobs: map[string][]byte{}}
}

func (f *fakeChat) Open(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = url
	f.visible = nil
	f.response = ""
	f.opens = append(f.opens, url)
	return nil
}

func (f *fakeChat) UploadFile(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noUpload {
		return &domain.StageError{Stage: "upload", Err: domain.ErrElementNotFound}
	}
	f.uploads = append(f.uploads, path)
	return nil
}

func (f *fakeChat) TypePrompt(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeChat) Submit(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.current {
	case genURL:
		if len(f.images) == 0 {
			return nil
		}
		idx := f.produced
		if idx >= len(f.images) {
			idx = len(f.images) - 1
		}
		url := fmt.Sprintf("https://img.test/%d.png", f.produced)
		f.produced++
		f.blobs[url] = f.images[idx]
		f.visible = append(f.visible, url)
	case valURL:
		if len(f.verdicts) == 0 {
			return nil
		}
		idx := f.judged
		if idx >= len(f.verdicts) {
			idx = len(f.verdicts) - 1
		}
		f.judged++
		f.response = f.verdicts[idx]
	}
	return nil
}

func (f *fakeChat) ImageResults(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visible...), nil
}

func (f *fakeChat) LatestResponse(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.response, nil
}

func (f *fakeChat) Close() error { return nil }

func (f *fakeChat) submittedPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typed...)
}

// fakeFetcher serves the blobs published by fakeChat; truncate[url] partial
// downloads are returned before the full body.
type fakeFetcher struct {
	chat     *fakeChat
	truncate map[string]int
	calls    int
}

func (f *fakeFetcher) Fetch(_ context.Context, url, destPath string) error {
	f.calls++
	f.chat.mu.Lock()
	body, ok := f.chat.blobs[url]
	f.chat.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown url %s", domain.ErrNetwork, url)
	}
	if f.truncate[url] > 0 {
		f.truncate[url]--
		body = body[:len(body)/2]
	}
	return os.WriteFile(destPath, body, 0o644)
}

type fixture struct {
	chat    *fakeChat
	fetcher *fakeFetcher
	ws      *storage.Workspace
	poller  *Poller
	pacer   *Pacer
	gen     *GenerationSession
	val     *ValidationSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ws, err := storage.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	logger := logging.Discard()
	chat := newFakeChat()
	fetcher := &fakeFetcher{chat: chat, truncate: map[string]int{}}
	pacer := NewPacer(config.JitterConfig{}, logger)
	poller := NewPoller(time.Millisecond, pacer, logger)
	defaults := config.Default().Prompts

	gen := NewGenerationSession(GenerationDeps{
		Surface: chat,
		Fetcher: fetcher,
		Store:   ws,
		Poller:  poller,
		Pacer:   pacer,
		Logger:  logger,
		Settings: GenerationSettings{
			Endpoint:         genURL,
			CorrectivePrompt: defaults.Corrective,
			Timeout:          2 * time.Second,
		},
	})
	val := NewValidationSession(ValidationDeps{
		Surface: chat,
		Store:   ws,
		Poller:  poller,
		Pacer:   pacer,
		Logger:  logger,
		Settings: ValidationSettings{
			Endpoint:    valURL,
			Instruction: defaults.Validation,
			PassMarker:  defaults.PassMarker,
			FailMarker:  defaults.FailMarker,
			Interval:    time.Millisecond,
			Timeout:     2 * time.Second,
		},
	})

	return &fixture{chat: chat, fetcher: fetcher, ws: ws, poller: poller, pacer: pacer, gen: gen, val: val}
}

func writeReference(t *testing.T, dir string) string {
	t.Helper()
	path := dir + "/reference.png"
	if err := os.WriteFile(path, sprite(t, 0), 0o644); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	return path
}

// sprite encodes a 10x10 image with `clear` fully transparent pixels.
func sprite(t *testing.T, clear int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	n := 0
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			a := uint8(255)
			if n < clear {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 90, B: 200, A: a})
			n++
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

type recordingLedger struct {
	runs     []domain.RunRecord
	attempts []domain.AttemptRecord
	finished bool
	valid    bool
	count    int
}

func (l *recordingLedger) StartRun(_ context.Context, run domain.RunRecord) error {
	l.runs = append(l.runs, run)
	return nil
}

func (l *recordingLedger) SaveAttempt(_ context.Context, a domain.AttemptRecord) error {
	l.attempts = append(l.attempts, a)
	return nil
}

func (l *recordingLedger) FinishRun(_ context.Context, _ string, validated bool, attempts int) error {
	l.finished, l.valid, l.count = true, validated, attempts
	return nil
}
