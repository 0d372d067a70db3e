// Package distinct keeps paired candidate lists from offering the same
// speaker on both sides of a pair.
package distinct

import (
	"fmt"
	"math/rand/v2"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/himanishpuri/AccentAB/pkg/accentab/pool"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// DefaultMaxAttempts bounds the swap search for one position.
const DefaultMaxAttempts = 100

// Fingerprinter derives a speaker/session key from an audio path. An empty
// key means the path carries no speaker information.
type Fingerprinter interface {
	Fingerprint(path string) string
}

// SegmentFingerprinter splits the path (or its base name) on Delimiter and
// returns the segment at Index. A negative Index counts from the end. The
// delimiter defaults to "/" for whole paths and "_" for base names.
type SegmentFingerprinter struct {
	Delimiter string
	Index     int
	Basename  bool
}

// Validate rejects rules that can never yield a key.
func (s SegmentFingerprinter) Validate() error {
	if s.Basename && s.Delimiter == "/" {
		return fmt.Errorf("segment rule splits a base name on %q, which it never contains", s.Delimiter)
	}
	return nil
}

func (s SegmentFingerprinter) Fingerprint(p string) string {
	if p == "" {
		return ""
	}
	if s.Basename {
		p = path.Base(p)
	}
	delim := s.Delimiter
	if delim == "" {
		delim = "/"
		if s.Basename {
			delim = "_"
		}
	}
	parts := strings.Split(p, delim)
	idx := s.Index
	if idx < 0 {
		idx += len(parts)
	}
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	// A path without the delimiter has no speaker segment.
	if len(parts) == 1 {
		return ""
	}
	return parts[idx]
}

// RegexFingerprinter returns the first capture group of the expression, or
// the whole match when the expression has no groups.
type RegexFingerprinter struct {
	re *regexp.Regexp
}

func NewRegexFingerprinter(expr string) (*RegexFingerprinter, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling fingerprint pattern: %w", err)
	}
	return &RegexFingerprinter{re: re}, nil
}

func (r *RegexFingerprinter) Fingerprint(p string) string {
	m := r.re.FindStringSubmatch(p)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

// Report lists the positions Enforce could not make distinct.
type Report struct {
	Checked int
	Swaps   int
	Skipped map[int]error
}

// Skip reports whether position i must not be turned into a row.
func (r Report) Skip(i int) bool {
	_, ok := r.Skipped[i]
	return ok
}

// Errors returns the skipped positions' errors ordered by position.
func (r Report) Errors() []error {
	idx := make([]int, 0, len(r.Skipped))
	for i := range r.Skipped {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]error, len(idx))
	for n, i := range idx {
		out[n] = r.Skipped[i]
	}
	return out
}

// Enforce walks both lists in lockstep and, whenever list1[i] and list2[i]
// share a fingerprint, swaps list2[i] with a randomly drawn list2[j] until
// they differ. Only list2 is reordered.
//
// A candidate j is rejected without swapping when it would bring the same
// speaker into an already checked position j < i, or when its path is empty.
// After maxAttempts draws the position is recorded as unsatisfiable.
func Enforce(list1, list2 *pool.Pool, fp Fingerprinter, rng *rand.Rand, maxAttempts int) Report {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	report := Report{Skipped: make(map[int]error)}

	n := min(list1.Len(), list2.Len())
	for i := 0; i < n; i++ {
		report.Checked++
		a, b := list1.At(i), list2.At(i)
		if a.Path == "" || b.Path == "" {
			report.Skipped[i] = &models.MalformedReferenceError{Reason: fmt.Sprintf("empty path at pair %d", i)}
			continue
		}

		key := fp.Fingerprint(a.Path)
		if key == "" || fp.Fingerprint(b.Path) != key {
			continue
		}

		satisfied := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			j := rng.IntN(list2.Len())
			if j == i {
				continue
			}
			cand := list2.At(j)
			if cand.Path == "" || fp.Fingerprint(cand.Path) == key {
				continue
			}
			if j < i && j < n && fp.Fingerprint(list1.At(j).Path) == fp.Fingerprint(b.Path) {
				continue
			}
			list2.Swap(i, j)
			report.Swaps++
			satisfied = true
			break
		}
		if !satisfied {
			report.Skipped[i] = &models.DistinctnessUnsatisfiableError{Index: i, Fingerprint: key, Attempts: maxAttempts}
		}
	}
	return report
}
