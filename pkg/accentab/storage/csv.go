package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/himanishpuri/AccentAB/pkg/models"
	"github.com/himanishpuri/AccentAB/pkg/utils"
)

const (
	MOSFile = "assignment_mos.csv"
	XABFile = "assignment_xab.csv"
)

var (
	mosHeader = []string{"email", "audio_file", "natural", "answer"}
	xabHeader = []string{"email", "audio_file_x", "audio_file_a", "audio_file_b",
		"accent_x", "accent_a", "accent_b", "natural", "answer"}
)

// CSVStore keeps both assignment tables as CSV files in one directory. The
// tables are cached in memory and every mutation rewrites the whole file.
//
// Before each read or answer the store compares the files on disk with
// what it last loaded or wrote; a table replaced by another process (for
// example a battery regenerated while a server is running) is reloaded
// instead of being overwritten by the stale cache.
type CSVStore struct {
	mu       sync.Mutex
	mosPath  string
	xabPath  string
	mos      []models.MosRow
	xab      []models.XabRow
	mosIdx   emailIndex
	xabIdx   emailIndex
	mosStamp fileStamp
	xabStamp fileStamp
}

// fileStamp identifies the version of a table file the cache reflects.
type fileStamp struct {
	info os.FileInfo
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileStamp{}, nil
	}
	if err != nil {
		return fileStamp{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return fileStamp{info: info}, nil
}

func (a fileStamp) equal(b fileStamp) bool {
	if a.info == nil || b.info == nil {
		return a.info == nil && b.info == nil
	}
	return os.SameFile(a.info, b.info) &&
		a.info.Size() == b.info.Size() &&
		a.info.ModTime().Equal(b.info.ModTime())
}

// emailIndex maps a participant to the positions of their rows in file order.
type emailIndex map[string][]int

func buildIndex(n int, email func(i int) string) emailIndex {
	idx := make(emailIndex)
	for i := 0; i < n; i++ {
		e := email(i)
		idx[e] = append(idx[e], i)
	}
	return idx
}

// locate converts a 1-based local index into a table position.
func (idx emailIndex) locate(email string, index int) (int, error) {
	positions := idx[email]
	if index < 1 || index > len(positions) {
		return 0, fmt.Errorf("%s #%d of %d: %w", email, index, len(positions), models.ErrAnswerIndexOutOfRange)
	}
	return positions[index-1], nil
}

// OpenCSV opens (or prepares) the tables under dir. Missing files are
// treated as empty tables.
func OpenCSV(dir string) (*CSVStore, error) {
	s := &CSVStore{
		mosPath: filepath.Join(dir, MOSFile),
		xabPath: filepath.Join(dir, XABFile),
	}
	if err := s.loadMOS(); err != nil {
		return nil, err
	}
	if err := s.loadXAB(); err != nil {
		return nil, err
	}
	s.reindex()
	return s, nil
}

func (s *CSVStore) loadMOS() error {
	stamp, err := stampOf(s.mosPath)
	if err != nil {
		return err
	}
	recs, err := readTable(s.mosPath, mosHeader)
	if err != nil {
		return err
	}
	rows := make([]models.MosRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, models.MosRow{
			Email: r[0], AudioFile: r[1], Natural: models.Naturalness(r[2]), Answer: r[3],
		})
	}
	s.mos, s.mosStamp = rows, stamp
	return nil
}

func (s *CSVStore) loadXAB() error {
	stamp, err := stampOf(s.xabPath)
	if err != nil {
		return err
	}
	recs, err := readTable(s.xabPath, xabHeader)
	if err != nil {
		return err
	}
	rows := make([]models.XabRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, models.XabRow{
			Email: r[0], AudioX: r[1], AudioA: r[2], AudioB: r[3],
			AccentX: models.Accent(r[4]), AccentA: models.Accent(r[5]), AccentB: models.Accent(r[6]),
			Natural: models.Naturalness(r[7]), Answer: r[8],
		})
	}
	s.xab, s.xabStamp = rows, stamp
	return nil
}

// refresh reloads every table whose file changed since the cache was
// filled. Callers hold s.mu.
func (s *CSVStore) refresh() error {
	changed := false

	stamp, err := stampOf(s.mosPath)
	if err != nil {
		return err
	}
	if !stamp.equal(s.mosStamp) {
		if err := s.loadMOS(); err != nil {
			return err
		}
		changed = true
	}

	stamp, err = stampOf(s.xabPath)
	if err != nil {
		return err
	}
	if !stamp.equal(s.xabStamp) {
		if err := s.loadXAB(); err != nil {
			return err
		}
		changed = true
	}

	if changed {
		s.reindex()
	}
	return nil
}

func (s *CSVStore) reindex() {
	s.mosIdx = buildIndex(len(s.mos), func(i int) string { return s.mos[i].Email })
	s.xabIdx = buildIndex(len(s.xab), func(i int) string { return s.xab[i].Email })
}

func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	got, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", path, err)
	}
	if !slices.Equal(got, header) {
		return nil, fmt.Errorf("%s: unexpected header %v", path, got)
	}

	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return recs, nil
}

func writeTable(path string, header []string, n int, record func(i int) []string) error {
	return utils.ReplaceFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := cw.Write(record(i)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func mosRecord(r models.MosRow) []string {
	return []string{r.Email, r.AudioFile, string(r.Natural), r.Answer}
}

func xabRecord(r models.XabRow) []string {
	return []string{r.Email, r.AudioX, r.AudioA, r.AudioB,
		string(r.AccentX), string(r.AccentA), string(r.AccentB), string(r.Natural), r.Answer}
}

func (s *CSVStore) flushMOS() error {
	err := writeTable(s.mosPath, mosHeader, len(s.mos), func(i int) []string { return mosRecord(s.mos[i]) })
	if err != nil {
		return err
	}
	s.mosStamp, err = stampOf(s.mosPath)
	return err
}

func (s *CSVStore) flushXAB() error {
	err := writeTable(s.xabPath, xabHeader, len(s.xab), func(i int) []string { return xabRecord(s.xab[i]) })
	if err != nil {
		return err
	}
	s.xabStamp, err = stampOf(s.xabPath)
	return err
}

func (s *CSVStore) WriteMOS(ctx context.Context, rows []models.MosRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.mos
	s.mos = slices.Clone(rows)
	if err := s.flushMOS(); err != nil {
		s.mos = prev
		return fmt.Errorf("writing MOS table: %w", err)
	}
	s.reindex()
	return nil
}

func (s *CSVStore) WriteXAB(ctx context.Context, rows []models.XabRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.xab
	s.xab = slices.Clone(rows)
	if err := s.flushXAB(); err != nil {
		s.xab = prev
		return fmt.Errorf("writing XAB table: %w", err)
	}
	s.reindex()
	return nil
}

func (s *CSVStore) MOSRow(ctx context.Context, email string, index int) (models.MosRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return models.MosRow{}, err
	}

	pos, err := s.mosIdx.locate(email, index)
	if err != nil {
		return models.MosRow{}, err
	}
	return s.mos[pos], nil
}

func (s *CSVStore) XABRow(ctx context.Context, email string, index int) (models.XabRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return models.XabRow{}, err
	}

	pos, err := s.xabIdx.locate(email, index)
	if err != nil {
		return models.XabRow{}, err
	}
	return s.xab[pos], nil
}

func (s *CSVStore) TotalRows(ctx context.Context, table models.Table, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return 0, err
	}

	switch table {
	case models.TableMOS:
		return len(s.mosIdx[email]), nil
	case models.TableXAB:
		return len(s.xabIdx[email]), nil
	}
	return 0, fmt.Errorf("%q: %w", table, models.ErrUnknownTable)
}

func (s *CSVStore) Answers(ctx context.Context, table models.Table, email string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return nil, err
	}

	var out []string
	switch table {
	case models.TableMOS:
		for _, pos := range s.mosIdx[email] {
			out = append(out, s.mos[pos].Answer)
		}
	case models.TableXAB:
		for _, pos := range s.xabIdx[email] {
			out = append(out, s.xab[pos].Answer)
		}
	default:
		return nil, fmt.Errorf("%q: %w", table, models.ErrUnknownTable)
	}
	return out, nil
}

// SetAnswer overwrites the answer of the participant's index-th row and
// rewrites the table file. A table replaced on disk since the last access
// is reloaded first, so the answer lands in the current battery.
func (s *CSVStore) SetAnswer(ctx context.Context, table models.Table, email string, index int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return err
	}

	switch table {
	case models.TableMOS:
		pos, err := s.mosIdx.locate(email, index)
		if err != nil {
			return err
		}
		prev := s.mos[pos].Answer
		s.mos[pos].Answer = answer
		if err := s.flushMOS(); err != nil {
			s.mos[pos].Answer = prev
			return fmt.Errorf("writing MOS table: %w", err)
		}
	case models.TableXAB:
		pos, err := s.xabIdx.locate(email, index)
		if err != nil {
			return err
		}
		prev := s.xab[pos].Answer
		s.xab[pos].Answer = answer
		if err := s.flushXAB(); err != nil {
			s.xab[pos].Answer = prev
			return fmt.Errorf("writing XAB table: %w", err)
		}
	default:
		return fmt.Errorf("%q: %w", table, models.ErrUnknownTable)
	}
	return nil
}

func (s *CSVStore) Close() error { return nil }
