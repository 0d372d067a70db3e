// Package rows builds MOS and XAB assignment rows from drawn audio references.
package rows

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/himanishpuri/AccentAB/pkg/accentab/pool"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

var errEmptyEmail = errors.New("empty participant email")

// BuildMosRow is pure construction with no randomness.
func BuildMosRow(email string, ref models.AudioRef, label models.Naturalness) (models.MosRow, error) {
	if strings.TrimSpace(email) == "" {
		return models.MosRow{}, errEmptyEmail
	}
	if err := models.ValidateRef(ref); err != nil {
		return models.MosRow{}, err
	}
	if !label.Valid() {
		return models.MosRow{}, fmt.Errorf("invalid naturalness label %q", label)
	}
	return models.MosRow{Email: email, AudioFile: ref.Path, Natural: label}, nil
}

// BuildXabRow draws one bit from rng to decide whether the correct candidate
// is placed at A (0) or B (1).
func BuildXabRow(rng *rand.Rand, email string, x, correct, wrong models.AudioRef,
	accentRight, accentWrong models.Accent, label models.Naturalness) (models.XabRow, error) {
	return place(rng.IntN(2), email, x, correct, wrong, accentRight, accentWrong, label)
}

func place(bit int, email string, x, correct, wrong models.AudioRef,
	accentRight, accentWrong models.Accent, label models.Naturalness) (models.XabRow, error) {
	if strings.TrimSpace(email) == "" {
		return models.XabRow{}, errEmptyEmail
	}
	for _, ref := range []models.AudioRef{x, correct, wrong} {
		if err := models.ValidateRef(ref); err != nil {
			return models.XabRow{}, err
		}
	}
	if accentRight == accentWrong {
		return models.XabRow{}, fmt.Errorf("foil accent %q equals the correct accent", accentWrong)
	}
	if !label.Valid() {
		return models.XabRow{}, fmt.Errorf("invalid naturalness label %q", label)
	}

	row := models.XabRow{
		Email:   email,
		AudioX:  x.Path,
		AccentX: accentRight,
		Natural: label,
	}
	if bit == 0 {
		row.AudioA, row.AccentA = correct.Path, accentRight
		row.AudioB, row.AccentB = wrong.Path, accentWrong
	} else {
		row.AudioA, row.AccentA = wrong.Path, accentWrong
		row.AudioB, row.AccentB = correct.Path, accentRight
	}
	return row, nil
}

// MosFanOut builds one row per participant for a single reference.
func MosFanOut(emails []string, ref models.AudioRef, label models.Naturalness) ([]models.MosRow, error) {
	out := make([]models.MosRow, 0, len(emails))
	for _, email := range emails {
		row, err := BuildMosRow(email, ref, label)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// XabFanOut builds one row per participant for a single pairing. The side of
// the correct candidate is drawn once, so every participant gets the same
// pairing in the same layout.
func XabFanOut(rng *rand.Rand, emails []string, x, correct, wrong models.AudioRef,
	accentRight, accentWrong models.Accent, label models.Naturalness) ([]models.XabRow, error) {
	bit := rng.IntN(2)
	out := make([]models.XabRow, 0, len(emails))
	for _, email := range emails {
		row, err := place(bit, email, x, correct, wrong, accentRight, accentWrong, label)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Triple is one drawn XAB pairing.
type Triple struct {
	X, Correct, Wrong models.AudioRef
}

// DrawTriple pops the front of each pool. x and correct may be the same pool,
// in which case two consecutive references are taken from it. Nothing is
// consumed unless every pool can supply its share.
func DrawTriple(x, correct, foil *pool.Pool) (Triple, error) {
	pools := []*pool.Pool{x, correct, foil}
	for i, p := range pools {
		need := 0
		for _, q := range pools {
			if q == p {
				need++
			}
		}
		if p.Len() < need {
			return Triple{}, fmt.Errorf("%s: %w", pools[i].Name(), models.ErrExhaustedPool)
		}
	}

	var t Triple
	t.X, _ = x.PopFront()
	t.Correct, _ = correct.PopFront()
	t.Wrong, _ = foil.PopFront()
	return t, nil
}
