package batch

import (
	"context"
	"fmt"

	"github.com/himanishpuri/AccentAB/pkg/models"
)

// Source supplies the raw candidate file names for each accent, relative to
// the configured prefixes. A source that had to leave some entries out
// returns the rest together with a *SkippedInputsError.
type Source interface {
	NaturalFiles(ctx context.Context, accent models.Accent) ([]string, error)
	SyntheticFiles(ctx context.Context, accent models.Accent) ([]string, error)
}

// SkippedInputsError is returned by a Source together with the candidates it
// could read. Errs lists the entries it left out; the run treats them as soft.
type SkippedInputsError struct {
	Errs []error
}

func (e *SkippedInputsError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("1 candidate skipped: %v", e.Errs[0])
	}
	return fmt.Sprintf("%d candidates skipped", len(e.Errs))
}

func (e *SkippedInputsError) Unwrap() []error { return e.Errs }

// Sink receives the finished tables. Each call replaces the whole table.
type Sink interface {
	WriteMOS(ctx context.Context, rows []models.MosRow) error
	WriteXAB(ctx context.Context, rows []models.XabRow) error
}

// Lists holds the candidate names of one accent.
type Lists struct {
	Natural   []string
	Synthetic []string
}

// MemorySource serves fixed lists; accents without an entry have no files.
type MemorySource map[models.Accent]Lists

func (m MemorySource) NaturalFiles(_ context.Context, accent models.Accent) ([]string, error) {
	return m[accent].Natural, nil
}

func (m MemorySource) SyntheticFiles(_ context.Context, accent models.Accent) ([]string, error) {
	return m[accent].Synthetic, nil
}
