// Package metadata reads candidate audio file names for an accent, either
// from a tab-separated corpus metadata table or by walking a directory of
// audio files.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/himanishpuri/AccentAB/pkg/models"
)

// AudioColumn is the metadata column holding the relative audio file name.
const AudioColumn = "audio_file"

// ReadTSV returns the audio_file column of a tab-separated metadata file in
// file order. Empty cells are kept so callers can report them.
func ReadTSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata: %w", err)
	}
	defer f.Close()

	files, err := ParseTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return files, nil
}

// ParseTSV is ReadTSV over an arbitrary reader.
func ParseTSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("metadata is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := slices.IndexFunc(header, func(h string) bool {
		return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == AudioColumn
	})
	if col < 0 {
		return nil, fmt.Errorf("missing %q column", AudioColumn)
	}

	var files []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(files)+2, err)
		}
		if col >= len(rec) {
			files = append(files, "")
			continue
		}
		files = append(files, strings.TrimSpace(rec[col]))
	}
	return files, nil
}

// WalkOptions controls WalkAudio.
type WalkOptions struct {
	// StaticRoot is the directory results are made relative to. Defaults to
	// the walked root.
	StaticRoot string
	// Extensions lists accepted file extensions. Defaults to ".wav".
	Extensions []string
	// MinDuration and MaxDuration, when set, keep only WAV files whose
	// duration lies strictly inside the window.
	MinDuration time.Duration
	MaxDuration time.Duration
}

func (o WalkOptions) accepts(name string) bool {
	exts := o.Extensions
	if len(exts) == 0 {
		exts = []string{".wav"}
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(exts, func(e string) bool { return strings.EqualFold(e, ext) })
}

func (o WalkOptions) filtersDuration() bool {
	return o.MinDuration > 0 || o.MaxDuration > 0
}

// WalkAudio lists audio files under root as slash-separated paths relative to
// opts.StaticRoot, in lexical order. A file whose duration cannot be read is
// left out and reported in skipped as a *models.MalformedReferenceError; only
// failures to read the directory tree itself abort the walk.
func WalkAudio(root string, opts WalkOptions) (files []string, skipped []error, err error) {
	base := opts.StaticRoot
	if base == "" {
		base = root
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !opts.accepts(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if opts.filtersDuration() {
			dur, err := WavDuration(path)
			if err != nil {
				skipped = append(skipped, &models.MalformedReferenceError{
					Path:   rel,
					Reason: fmt.Sprintf("reading duration: %v", err),
				})
				return nil
			}
			if opts.MinDuration > 0 && dur <= opts.MinDuration {
				return nil
			}
			if opts.MaxDuration > 0 && dur >= opts.MaxDuration {
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, skipped, nil
}

// WavDuration reads the header of a WAV file and returns its duration.
func WavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, errors.New("not a valid WAV file")
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("locating PCM data: %w", err)
	}

	bytesPerSec := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth) / 8
	if bytesPerSec == 0 {
		return 0, errors.New("WAV header has zero byte rate")
	}
	return time.Duration(d.PCMLen() * int64(time.Second) / bytesPerSec), nil
}
