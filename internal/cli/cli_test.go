package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"SpriteForge/internal/app"
	"SpriteForge/internal/domain"
	"SpriteForge/internal/usecase"
)

type stubRunner struct {
	calls   []app.Request
	outcome app.Outcome
	err     error
}

func (s *stubRunner) Run(_ context.Context, req app.Request) (app.Outcome, error) {
	s.calls = append(s.calls, req)
	return s.outcome, s.err
}

func TestParseInvocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    Invocation
		wantErr bool
	}{
		{name: "reference only", args: []string{"run", "ref.png"}, want: Invocation{ReferencePath: "ref.png"}},
		{name: "batch", args: []string{"run", "ref.png", "prompts.txt"}, want: Invocation{ReferencePath: "ref.png", PromptsPath: "prompts.txt"}},
		{name: "debug last", args: []string{"run", "ref.png", "-debug"}, want: Invocation{ReferencePath: "ref.png", Debug: true}},
		{name: "debug between", args: []string{"run", "ref.png", "--debug", "p.txt"}, want: Invocation{ReferencePath: "ref.png", PromptsPath: "p.txt", Debug: true}},
		{name: "no args", args: nil, wantErr: true},
		{name: "no verb", args: []string{"ref.png"}, wantErr: true},
		{name: "verb only", args: []string{"run"}, wantErr: true},
		{name: "too many", args: []string{"run", "a", "b", "c"}, wantErr: true},
		{name: "unknown flag", args: []string{"run", "a", "-fast"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseInvocation(tt.args)
			if tt.wantErr {
				if ExitCode(err) != ExitUsage {
					t.Fatalf("expected usage error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInvocation: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	var stderr bytes.Buffer
	res, err := Run(context.Background(), nil, runner, &stderr)
	if err == nil || res.ExitCode != ExitUsage {
		t.Fatalf("expected exit %d, got %d (%v)", ExitUsage, res.ExitCode, err)
	}
	if !strings.Contains(stderr.String(), "usage: spriteforge run") {
		t.Fatalf("usage not printed: %q", stderr.String())
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner must not be called")
	}
}

func TestRunExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome app.Outcome
		err     error
		want    int
	}{
		{name: "validated", outcome: app.Outcome{Mode: usecase.ModeSprite, Sprite: usecase.RunReport{Validated: true}}, want: ExitSuccess},
		{name: "exhausted", outcome: app.Outcome{Mode: usecase.ModeSprite}, want: ExitExhausted},
		{name: "batch complete", outcome: app.Outcome{Mode: usecase.ModeBatch, Batch: usecase.BatchReport{Outputs: []string{"o0.png"}}}, want: ExitSuccess},
		{name: "batch with failures", outcome: app.Outcome{Mode: usecase.ModeBatch, Batch: usecase.BatchReport{Outputs: []string{""}, Failed: 1}}, want: ExitExhausted},
		{name: "missing input", err: fmt.Errorf("reference image x: %w", domain.ErrInputMissing), want: ExitUsage},
		{name: "missing control", err: &domain.StageError{Stage: "upload reference", Err: domain.ErrElementNotFound}, want: ExitRuntime},
		{name: "cancelled", err: context.Canceled, want: ExitRuntime},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &stubRunner{outcome: tt.outcome, err: tt.err}
			var stderr bytes.Buffer
			res, err := Run(context.Background(), []string{"run", "ref.png", "-debug"}, runner, &stderr)
			if !errors.Is(err, tt.err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.ExitCode != tt.want {
				t.Fatalf("exit code %d, want %d", res.ExitCode, tt.want)
			}
			if len(runner.calls) != 1 || !runner.calls[0].Debug {
				t.Fatalf("unexpected runner calls: %+v", runner.calls)
			}
		})
	}
}
