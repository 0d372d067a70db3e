package accentab

import (
	"context"

	"github.com/himanishpuri/AccentAB/pkg/accentab/batch"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

type Service interface {
	Generate(ctx context.Context, plan *Plan) (*GenerateReport, error)
	MOSRow(ctx context.Context, email string, index int) (models.MosRow, error)
	XABRow(ctx context.Context, email string, index int) (models.XabRow, error)
	TotalRows(ctx context.Context, table models.Table, email string) (int, error)
	SetAnswer(ctx context.Context, table models.Table, email string, index int, answer string) error
	NextIndex(ctx context.Context, table models.Table, email string) (int, error)
	Progress(ctx context.Context, email string) ([]models.Progress, error)
	Runs(ctx context.Context) ([]models.RunInfo, error)
	Close() error
}

// Store is the assignment query interface. Indexes are 1-based per
// participant in table order.
type Store interface {
	batch.Sink
	MOSRow(ctx context.Context, email string, index int) (models.MosRow, error)
	XABRow(ctx context.Context, email string, index int) (models.XabRow, error)
	TotalRows(ctx context.Context, table models.Table, email string) (int, error)
	// Answers returns the participant's answers in row order, "" for
	// unanswered rows.
	Answers(ctx context.Context, table models.Table, email string) ([]string, error)
	SetAnswer(ctx context.Context, table models.Table, email string, index int, answer string) error
	Close() error
}

// RunRecorder is implemented by stores that keep a generation history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.RunInfo) error
	Runs(ctx context.Context) ([]models.RunInfo, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
