package accentab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/himanishpuri/AccentAB/pkg/accentab/storage"
	"github.com/himanishpuri/AccentAB/pkg/logger"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func inline(accent, kind string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s/%s-%s%d/%02d.wav", accent, accent, kind, i%4, i)
	}
	return out
}

// testPlan yields 2 MOS references and 1 XAB pairing per accent. Speaker
// segments never repeat across accents or kinds, so no pairing is skipped.
func testPlan() *Plan {
	p := DefaultPlan()
	p.Name = "unit"
	p.Natural = QuotaPlan{XABPerAccent: 1, MOSPerAccent: 1, TotalPerAccent: 2}
	p.Synthetic = QuotaPlan{XABPerAccent: 2, MOSPerAccent: 1, TotalPerAccent: 4}
	for _, acc := range []string{"al", "sp"} {
		p.Accents = append(p.Accents, AccentPlan{
			Code:      acc,
			Natural:   InputPlan{Files: inline(acc, "nat", 8)},
			Synthetic: InputPlan{Files: inline(acc, "syn", 8)},
		})
	}
	p.Groups = []GroupPlan{{Name: "all", Emails: []string{"a@usp.br", "b@usp.br"}}}
	return p
}

func newTestService(t *testing.T, backend string) Service {
	t.Helper()
	return newTestServiceAt(t, backend, t.TempDir())
}

func newTestServiceAt(t *testing.T, backend, dir string) Service {
	t.Helper()
	svc, err := NewService(
		WithStorePath(dir),
		WithBackend(backend),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	if _, err := svc.Generate(context.Background(), testPlan()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return svc
}

func TestGenerateFillsStore(t *testing.T) {
	for _, backend := range []string{BackendCSV, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			svc := newTestService(t, backend)
			ctx := context.Background()

			// 4 MOS references (2 per accent) and 2 XAB pairings per participant.
			for table, want := range map[models.Table]int{models.TableMOS: 4, models.TableXAB: 2} {
				got, err := svc.TotalRows(ctx, table, "a@usp.br")
				if err != nil {
					t.Fatalf("TotalRows(%s): %v", table, err)
				}
				if got != want {
					t.Errorf("TotalRows(%s) = %d, want %d", table, got, want)
				}
			}

			row, err := svc.XABRow(ctx, "b@usp.br", 1)
			if err != nil {
				t.Fatalf("XABRow: %v", err)
			}
			if row.Email != "b@usp.br" || row.Natural != models.Synthetic {
				t.Errorf("unexpected row %+v", row)
			}
			if _, err := svc.MOSRow(ctx, "b@usp.br", 0); !errors.Is(err, models.ErrAnswerIndexOutOfRange) {
				t.Errorf("MOSRow(0) err = %v", err)
			}
		})
	}
}

func TestGenerateIsReproducible(t *testing.T) {
	dirs := []string{t.TempDir(), t.TempDir()}
	for _, dir := range dirs {
		newTestServiceAt(t, BackendCSV, dir)
	}

	for _, name := range []string{storage.MOSFile, storage.XABFile} {
		first, err := os.ReadFile(filepath.Join(dirs[0], name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		second, err := os.ReadFile(filepath.Join(dirs[1], name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(first) == 0 {
			t.Fatalf("%s is empty", name)
		}
		if diff := cmp.Diff(string(first), string(second)); diff != "" {
			t.Errorf("%s differs between runs (-first +second):\n%s", name, diff)
		}
	}
}

func TestSetAnswer(t *testing.T) {
	svc := newTestService(t, BackendCSV)
	ctx := context.Background()

	tests := []struct {
		name    string
		table   models.Table
		index   int
		answer  string
		wantErr error
	}{
		{"mos rating", models.TableMOS, 1, " 4 ", nil},
		{"mos twice", models.TableMOS, 1, "5", models.ErrAnswerAlreadyRecorded},
		{"mos out of scale", models.TableMOS, 2, "6", models.ErrInvalidAnswer},
		{"mos not a number", models.TableMOS, 2, "good", models.ErrInvalidAnswer},
		{"xab upper case", models.TableXAB, 1, "B", nil},
		{"xab bad choice", models.TableXAB, 2, "x", models.ErrInvalidAnswer},
		{"past the end", models.TableXAB, 3, "a", models.ErrAnswerIndexOutOfRange},
		{"unknown table", models.Table("abx"), 1, "a", models.ErrUnknownTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SetAnswer(ctx, tt.table, "a@usp.br", tt.index, tt.answer)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SetAnswer err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	mos, err := svc.MOSRow(ctx, "a@usp.br", 1)
	if err != nil {
		t.Fatalf("MOSRow: %v", err)
	}
	if mos.Answer != "4" {
		t.Errorf("stored MOS answer = %q, want 4", mos.Answer)
	}
	xab, err := svc.XABRow(ctx, "a@usp.br", 1)
	if err != nil {
		t.Fatalf("XABRow: %v", err)
	}
	if xab.Answer != "b" {
		t.Errorf("stored XAB answer = %q, want b", xab.Answer)
	}

	other, err := svc.MOSRow(ctx, "b@usp.br", 1)
	if err != nil {
		t.Fatalf("MOSRow: %v", err)
	}
	if other.Answered() {
		t.Errorf("answer leaked to another participant: %+v", other)
	}
}

func TestProgressAndNextIndex(t *testing.T) {
	svc := newTestService(t, BackendSQLite)
	ctx := context.Background()

	next, err := svc.NextIndex(ctx, models.TableMOS, "a@usp.br")
	if err != nil || next != 1 {
		t.Fatalf("NextIndex = %d, %v; want 1", next, err)
	}

	for _, i := range []int{1, 3} {
		if err := svc.SetAnswer(ctx, models.TableMOS, "a@usp.br", i, "3"); err != nil {
			t.Fatalf("SetAnswer(%d): %v", i, err)
		}
	}
	next, err = svc.NextIndex(ctx, models.TableMOS, "a@usp.br")
	if err != nil || next != 2 {
		t.Errorf("NextIndex = %d, %v; want 2", next, err)
	}

	got, err := svc.Progress(ctx, "a@usp.br")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	want := []models.Progress{
		{Table: models.TableMOS, Email: "a@usp.br", Answered: 2, Total: 4, Next: 2},
		{Table: models.TableXAB, Email: "a@usp.br", Answered: 0, Total: 2, Next: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Progress (-want +got):\n%s", diff)
	}

	for i := 1; i <= 2; i++ {
		if err := svc.SetAnswer(ctx, models.TableXAB, "a@usp.br", i, "a"); err != nil {
			t.Fatalf("SetAnswer xab %d: %v", i, err)
		}
	}
	if next, _ := svc.NextIndex(ctx, models.TableXAB, "a@usp.br"); next != 0 {
		t.Errorf("NextIndex after finishing = %d, want 0", next)
	}

	unknown, err := svc.Progress(ctx, "nobody@usp.br")
	if err != nil {
		t.Fatalf("Progress(unknown): %v", err)
	}
	if unknown[0].Total != 0 || unknown[0].Next != 0 {
		t.Errorf("unknown participant progress = %+v", unknown[0])
	}
}

func TestRuns(t *testing.T) {
	ctx := context.Background()

	csvSvc := newTestService(t, BackendCSV)
	if _, err := csvSvc.Runs(ctx); !errors.Is(err, ErrNoRunHistory) {
		t.Errorf("csv Runs err = %v, want ErrNoRunHistory", err)
	}

	svc := newTestService(t, BackendSQLite)
	runs, err := svc.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if _, err := uuid.Parse(runs[0].ID); err != nil {
		t.Errorf("run ID %q is not a UUID: %v", runs[0].ID, err)
	}
	if runs[0].PlanName != "unit" || runs[0].Seed != 1337 || runs[0].MosRows != 8 || runs[0].XabRows != 4 {
		t.Errorf("unexpected run %+v", runs[0])
	}
}

func TestGenerateRejectsBadPlan(t *testing.T) {
	svc, err := NewService(WithStorePath(t.TempDir()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	p := testPlan()
	p.Accents = nil
	if _, err := svc.Generate(context.Background(), p); err == nil {
		t.Error("expected error for plan without accents")
	}
	if _, err := svc.Generate(context.Background(), nil); err == nil {
		t.Error("expected error for nil plan")
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	if _, err := OpenStore("postgres", t.TempDir()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
