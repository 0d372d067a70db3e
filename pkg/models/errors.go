package models

import (
	"errors"
	"fmt"
)

var (
	// ErrExhaustedPool signals that a pool has no more elements. Generation
	// treats it as a soft stop for the current accent.
	ErrExhaustedPool = errors.New("pool exhausted")

	// ErrAnswerIndexOutOfRange is returned when a participant has fewer rows
	// than the requested 1-based index.
	ErrAnswerIndexOutOfRange = errors.New("no such row for participant")

	// ErrAnswerAlreadyRecorded is returned when an answer is submitted for a
	// row that already has one.
	ErrAnswerAlreadyRecorded = errors.New("answer already recorded")

	// ErrInvalidAnswer is returned when an answer is not valid for its table.
	ErrInvalidAnswer = errors.New("invalid answer")

	// ErrNoMetadata is returned when an accent has no input rows at all.
	ErrNoMetadata = errors.New("no metadata rows")

	// ErrUnknownTable is returned for a table name other than mos or xab.
	ErrUnknownTable = errors.New("unknown assignment table")
)

// MalformedReferenceError reports an empty or invalid audio path.
type MalformedReferenceError struct {
	Path   string
	Reason string
}

func (e *MalformedReferenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed audio reference: %s", e.Reason)
	}
	return fmt.Sprintf("malformed audio reference %q: %s", e.Path, e.Reason)
}

// DistinctnessUnsatisfiableError reports a pair position where no swap could
// separate the two speakers within the retry budget.
type DistinctnessUnsatisfiableError struct {
	Index       int
	Fingerprint string
	Attempts    int
}

func (e *DistinctnessUnsatisfiableError) Error() string {
	return fmt.Sprintf("index %d: speaker %q still shared after %d swap attempts",
		e.Index, e.Fingerprint, e.Attempts)
}

// ValidateRef checks that an audio reference is usable in a row.
func ValidateRef(ref AudioRef) error {
	if ref.Path == "" {
		return &MalformedReferenceError{Reason: "empty path"}
	}
	if !ref.Natural.Valid() {
		return &MalformedReferenceError{Path: ref.Path, Reason: fmt.Sprintf("unknown naturalness %q", ref.Natural)}
	}
	return nil
}
