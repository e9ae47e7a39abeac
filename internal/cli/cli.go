package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"SpriteForge/internal/app"
	"SpriteForge/internal/domain"
)

const (
	ExitSuccess   = 0
	ExitUsage     = 1
	ExitRuntime   = 2
	ExitExhausted = 3
)

const usage = `usage: spriteforge run <referenceImagePath> [promptsFile] [-debug]

  referenceImagePath  character reference uploaded to the generation chat
  promptsFile         one instruction per line; switches to batch mode
  -debug              random 2-15s pauses between browser steps`

// Invocation is the parsed command line.
type Invocation struct {
	ReferencePath string
	PromptsPath   string
	Debug         bool
}

// InvocationError is a usage problem detected before anything runs.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation accepts `run <ref> [prompts]` with -debug anywhere after the verb.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 || args[0] != "run" {
		return Invocation{}, invalidInvocationf("expected the run command")
	}

	fs := flag.NewFlagSet("spriteforge run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	debug := fs.Bool("debug", false, "random pauses between browser steps")

	var positional []string
	rest := args[1:]
	for {
		if err := fs.Parse(rest); err != nil {
			return Invocation{}, invalidInvocationf("%v", err)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	switch len(positional) {
	case 1, 2:
	default:
		return Invocation{}, invalidInvocationf("expected 1 or 2 arguments, got %d", len(positional))
	}

	inv := Invocation{ReferencePath: positional[0], Debug: *debug}
	if len(positional) == 2 {
		inv.PromptsPath = positional[1]
	}
	if strings.TrimSpace(inv.ReferencePath) == "" {
		return Invocation{}, invalidInvocationf("reference image path is empty")
	}
	return inv, nil
}

// Runner executes a parsed invocation; *app.Application satisfies it.
type Runner interface {
	Run(ctx context.Context, req app.Request) (app.Outcome, error)
}

// Result is the exit code plus the outcome of the run, if one happened.
type Result struct {
	ExitCode int
	Outcome  app.Outcome
}

// Run parses args (without argv[0]), runs them and maps the outcome to an exit code.
// Usage and diagnostics go to stderr.
func Run(ctx context.Context, args []string, runner Runner, stderr io.Writer) (Result, error) {
	inv, err := ParseInvocation(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n%s\n", err, usage)
		return Result{ExitCode: ExitCode(err)}, err
	}

	outcome, err := runner.Run(ctx, app.Request{
		ReferencePath: inv.ReferencePath,
		PromptsPath:   inv.PromptsPath,
		Debug:         inv.Debug,
	})
	res := Result{Outcome: outcome}
	switch {
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		res.ExitCode = ExitCode(err)
	case outcome.Succeeded():
		res.ExitCode = ExitSuccess
	default:
		res.ExitCode = ExitExhausted
	}
	return res, err
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.ExitCode
	}
	if errors.Is(err, domain.ErrInputMissing) {
		return ExitUsage
	}
	return ExitRuntime
}
