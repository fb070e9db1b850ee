package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput marks an absent input file or directory. The enclosing
	// stage is skipped with a warning.
	ErrMissingInput = errors.New("missing input")

	// ErrMalformedFile marks a log file whose enclosing structure cannot be
	// parsed. The file is skipped.
	ErrMalformedFile = errors.New("malformed file")

	// ErrEmptyDataset aborts the run: a stage received zero usable rows.
	ErrEmptyDataset = errors.New("empty dataset")
)

// MalformedRecordError reports one session or line that failed to decode.
type MalformedRecordError struct {
	Source string
	Record string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("malformed record in %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("malformed record %q in %s: %v", e.Record, e.Source, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// ModelStateError reports a persisted artifact that exists but cannot be used.
// Callers treat it as absent and fit a fresh one.
type ModelStateError struct {
	Path string
	Err  error
}

func (e *ModelStateError) Error() string {
	return fmt.Sprintf("model state %s: %v", e.Path, e.Err)
}

func (e *ModelStateError) Unwrap() error { return e.Err }

// MissingInput wraps ErrMissingInput with the offending path.
func MissingInput(path string) error {
	return fmt.Errorf("%w: %s", ErrMissingInput, path)
}

// EmptyDataset wraps ErrEmptyDataset with the stage that hit it.
func EmptyDataset(stage string) error {
	return fmt.Errorf("%s: %w", stage, ErrEmptyDataset)
}
