package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInputMissing is returned when the reference image or prompts file does not exist.
	ErrInputMissing = errors.New("input missing")
	// ErrNetwork wraps transport failures while fetching remote images.
	ErrNetwork = errors.New("network error")
	// ErrDecode marks bytes that are not a decodable raster image.
	ErrDecode = errors.New("decode error")
	// ErrTimedOut is the poll outcome when the deadline passes first.
	ErrTimedOut = errors.New("timed out")
	// ErrElementNotFound means the chat surface lacks a required control.
	ErrElementNotFound = errors.New("element not found")
)

// StageError attaches the session stage to an underlying failure.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fatal reports whether err aborts the whole run instead of a single attempt.
func Fatal(err error) bool {
	return errors.Is(err, ErrElementNotFound) || errors.Is(err, ErrInputMissing)
}
