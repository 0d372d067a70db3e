package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// testStore is the surface both backends share.
type testStore interface {
	WriteMOS(ctx context.Context, rows []models.MosRow) error
	WriteXAB(ctx context.Context, rows []models.XabRow) error
	MOSRow(ctx context.Context, email string, index int) (models.MosRow, error)
	XABRow(ctx context.Context, email string, index int) (models.XabRow, error)
	TotalRows(ctx context.Context, table models.Table, email string) (int, error)
	Answers(ctx context.Context, table models.Table, email string) ([]string, error)
	SetAnswer(ctx context.Context, table models.Table, email string, index int, answer string) error
	Close() error
}

type backend struct {
	name string
	open func(t *testing.T, dir string) testStore
}

var backends = []backend{
	{"csv", func(t *testing.T, dir string) testStore {
		s, err := OpenCSV(dir)
		if err != nil {
			t.Fatalf("OpenCSV: %v", err)
		}
		return s
	}},
	{"sqlite", func(t *testing.T, dir string) testStore {
		s, err := OpenSQLite(filepath.Join(dir, DefaultDBFile))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		return s
	}},
}

func sampleMOS() []models.MosRow {
	return []models.MosRow{
		{Email: "a@usp.br", AudioFile: "m1.wav", Natural: models.Natural},
		{Email: "a@usp.br", AudioFile: "m2.wav", Natural: models.Synthetic},
		{Email: "b@usp.br", AudioFile: "m1.wav", Natural: models.Natural},
	}
}

func sampleXAB() []models.XabRow {
	return []models.XabRow{
		{Email: "a@usp.br", AudioX: "x1", AudioA: "c1", AudioB: "w1", AccentX: "al", AccentA: "al", AccentB: "sp", Natural: models.Synthetic},
		{Email: "b@usp.br", AudioX: "x1", AudioA: "c1", AudioB: "w1", AccentX: "al", AccentA: "al", AccentB: "sp", Natural: models.Synthetic},
		{Email: "b@usp.br", AudioX: "x2", AudioA: "w2", AudioB: "c2", AccentX: "sp", AccentA: "al", AccentB: "sp", Natural: models.Synthetic},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s testStore, dir string)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			dir := t.TempDir()
			s := b.open(t, dir)
			t.Cleanup(func() { s.Close() })
			fn(t, s, dir)
		})
	}
}

func TestRowLookup(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, s testStore, _ string) {
		if err := s.WriteMOS(ctx, sampleMOS()); err != nil {
			t.Fatalf("WriteMOS: %v", err)
		}
		if err := s.WriteXAB(ctx, sampleXAB()); err != nil {
			t.Fatalf("WriteXAB: %v", err)
		}

		row, err := s.MOSRow(ctx, "a@usp.br", 2)
		if err != nil {
			t.Fatalf("MOSRow: %v", err)
		}
		if diff := cmp.Diff(sampleMOS()[1], row); diff != "" {
			t.Errorf("MOS row mismatch (-want +got):\n%s", diff)
		}

		xrow, err := s.XABRow(ctx, "b@usp.br", 2)
		if err != nil {
			t.Fatalf("XABRow: %v", err)
		}
		if diff := cmp.Diff(sampleXAB()[2], xrow); diff != "" {
			t.Errorf("XAB row mismatch (-want +got):\n%s", diff)
		}

		for _, tc := range []struct {
			table models.Table
			email string
			want  int
		}{
			{models.TableMOS, "a@usp.br", 2},
			{models.TableMOS, "b@usp.br", 1},
			{models.TableXAB, "b@usp.br", 2},
			{models.TableXAB, "nobody@usp.br", 0},
		} {
			got, err := s.TotalRows(ctx, tc.table, tc.email)
			if err != nil {
				t.Fatalf("TotalRows: %v", err)
			}
			if got != tc.want {
				t.Errorf("TotalRows(%s, %s) = %d, want %d", tc.table, tc.email, got, tc.want)
			}
		}
	})
}

func TestOutOfRange(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, s testStore, _ string) {
		if err := s.WriteMOS(ctx, sampleMOS()); err != nil {
			t.Fatal(err)
		}

		for _, idx := range []int{0, 3, -1} {
			if _, err := s.MOSRow(ctx, "a@usp.br", idx); !errors.Is(err, models.ErrAnswerIndexOutOfRange) {
				t.Errorf("MOSRow(%d): expected out of range, got %v", idx, err)
			}
		}
		if _, err := s.XABRow(ctx, "a@usp.br", 1); !errors.Is(err, models.ErrAnswerIndexOutOfRange) {
			t.Errorf("XABRow on empty table: got %v", err)
		}
		if err := s.SetAnswer(ctx, models.TableMOS, "b@usp.br", 2, "4"); !errors.Is(err, models.ErrAnswerIndexOutOfRange) {
			t.Errorf("SetAnswer out of range: got %v", err)
		}
		if _, err := s.TotalRows(ctx, models.Table("abx"), "a@usp.br"); !errors.Is(err, models.ErrUnknownTable) {
			t.Errorf("TotalRows unknown table: got %v", err)
		}
	})
}

func TestAnswerRoundTrip(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, s testStore, _ string) {
		if err := s.WriteXAB(ctx, sampleXAB()); err != nil {
			t.Fatal(err)
		}

		if err := s.SetAnswer(ctx, models.TableXAB, "b@usp.br", 2, "b"); err != nil {
			t.Fatalf("SetAnswer: %v", err)
		}

		row, err := s.XABRow(ctx, "b@usp.br", 2)
		if err != nil {
			t.Fatal(err)
		}
		if row.Answer != "b" {
			t.Errorf("answer = %q, want b", row.Answer)
		}

		// Every other row is untouched.
		for _, at := range []struct {
			email string
			index int
		}{{"a@usp.br", 1}, {"b@usp.br", 1}} {
			other, err := s.XABRow(ctx, at.email, at.index)
			if err != nil {
				t.Fatal(err)
			}
			if other.Answer != "" {
				t.Errorf("%s #%d answer changed to %q", at.email, at.index, other.Answer)
			}
		}

		answers, err := s.Answers(ctx, models.TableXAB, "b@usp.br")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"", "b"}, answers); diff != "" {
			t.Errorf("answers mismatch:\n%s", diff)
		}
	})
}

func TestWriteReplacesTable(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, s testStore, _ string) {
		if err := s.WriteMOS(ctx, sampleMOS()); err != nil {
			t.Fatal(err)
		}
		if err := s.WriteMOS(ctx, sampleMOS()[2:]); err != nil {
			t.Fatal(err)
		}

		n, _ := s.TotalRows(ctx, models.TableMOS, "a@usp.br")
		if n != 0 {
			t.Errorf("old rows survived a full write: %d", n)
		}
		n, _ = s.TotalRows(ctx, models.TableMOS, "b@usp.br")
		if n != 1 {
			t.Errorf("b@usp.br rows = %d, want 1", n)
		}
	})
}

func TestCSVPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenCSV(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteXAB(ctx, sampleXAB()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAnswer(ctx, models.TableXAB, "a@usp.br", 1, "a"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, XABFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if lines[0] != "email,audio_file_x,audio_file_a,audio_file_b,accent_x,accent_a,accent_b,natural,answer" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[1] != "a@usp.br,x1,c1,w1,al,al,sp,s,a" {
		t.Errorf("unexpected first row: %s", lines[1])
	}

	reopened, err := OpenCSV(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	row, err := reopened.XABRow(ctx, "a@usp.br", 1)
	if err != nil {
		t.Fatal(err)
	}
	if row.Answer != "a" || row.AccentB != "sp" {
		t.Errorf("reloaded row = %+v", row)
	}
}

func TestCSVRejectsForeignHeader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MOSFile), []byte("email,file,answer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenCSV(dir); err == nil {
		t.Error("expected error for mismatched header")
	}
}

func TestCSVReloadsRegeneratedBattery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	server, err := OpenCSV(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := server.WriteMOS(ctx, sampleMOS()); err != nil {
		t.Fatal(err)
	}
	if _, err := server.MOSRow(ctx, "a@usp.br", 1); err != nil {
		t.Fatal(err)
	}

	// A second process regenerates the battery under the running server.
	regen, err := OpenCSV(dir)
	if err != nil {
		t.Fatal(err)
	}
	fresh := []models.MosRow{
		{Email: "a@usp.br", AudioFile: "fresh1.wav", Natural: models.Synthetic},
		{Email: "c@usp.br", AudioFile: "fresh2.wav", Natural: models.Natural},
		{Email: "c@usp.br", AudioFile: "fresh3.wav", Natural: models.Natural},
		{Email: "c@usp.br", AudioFile: "fresh4.wav", Natural: models.Synthetic},
	}
	if err := regen.WriteMOS(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	if err := server.SetAnswer(ctx, models.TableMOS, "c@usp.br", 2, "4"); err != nil {
		t.Fatalf("SetAnswer on regenerated table: %v", err)
	}
	row, err := server.MOSRow(ctx, "a@usp.br", 1)
	if err != nil {
		t.Fatal(err)
	}
	if row.AudioFile != "fresh1.wav" {
		t.Errorf("server served stale row %+v", row)
	}

	reopened, err := OpenCSV(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Answers(ctx, models.TableMOS, "c@usp.br")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"", "4", ""}, got); diff != "" {
		t.Errorf("answers on disk (-want +got):\n%s", diff)
	}
	if n, _ := reopened.TotalRows(ctx, models.TableMOS, "b@usp.br"); n != 0 {
		t.Errorf("stale participant b@usp.br still has %d rows", n)
	}
}

func TestSQLiteRecordRun(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "runs", DefaultDBFile))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	older := models.RunInfo{ID: "run-1", Seed: 1337, PlanName: "article", MosRows: 312, XabRows: 468, CreatedAt: time.Now().Add(-time.Hour)}
	newer := models.RunInfo{ID: "run-2", Seed: 7, PlanName: "pilot", MosRows: 4, XabRows: 6, CreatedAt: time.Now()}
	for _, r := range []models.RunInfo{older, newer} {
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].Seed != 1337 {
		t.Errorf("unexpected runs: %+v", runs)
	}
}
