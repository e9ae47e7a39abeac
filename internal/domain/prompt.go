package domain

import "strings"

// Prompt is an ordered, read-only sequence of instructions.
type Prompt struct {
	lines []string
}

// NewPrompt copies the given lines, dropping blank ones.
func NewPrompt(lines ...string) Prompt {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return Prompt{lines: kept}
}

// ParsePrompt splits a prompts file body into one instruction per non-empty line.
func ParsePrompt(raw string) Prompt {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return NewPrompt(strings.Split(raw, "\n")...)
}

// Len returns the number of instructions.
func (p Prompt) Len() int {
	return len(p.lines)
}

// Line returns the i-th instruction.
func (p Prompt) Line(i int) string {
	return p.lines[i]
}

// Lines returns a copy so callers cannot mutate the prompt.
func (p Prompt) Lines() []string {
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}
