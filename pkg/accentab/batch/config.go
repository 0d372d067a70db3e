package batch

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/AccentAB/pkg/accentab/distinct"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// Quota sizes the sub-pools carved out of one accent's candidates.
type Quota struct {
	XABPerAccent   int
	MOSPerAccent   int
	TotalPerAccent int
}

// AccentSpec configures one accent of the battery.
type AccentSpec struct {
	Accent models.Accent
	// XABGroups restricts the XAB audience for this accent to the named
	// participant groups. Empty means every participant.
	XABGroups []string
}

// Config drives one generation run.
type Config struct {
	Name            string
	Seed            uint64
	Accents         []AccentSpec
	Groups          []models.ParticipantGroup
	Natural         Quota
	Synthetic       Quota
	NaturalPrefix   string
	SyntheticPrefix string
	// Fingerprinter enables the distinctness enforcer when non-nil.
	Fingerprinter   distinct.Fingerprinter
	MaxSwapAttempts int
}

// DefaultConfig carries the quotas used for the published battery.
func DefaultConfig() Config {
	return Config{
		Seed:            1337,
		Natural:         Quota{XABPerAccent: 18, MOSPerAccent: 12, TotalPerAccent: 30},
		Synthetic:       Quota{XABPerAccent: 36, MOSPerAccent: 12, TotalPerAccent: 48},
		MaxSwapAttempts: distinct.DefaultMaxAttempts,
	}
}

func (q Quota) validate(kind string) error {
	if q.XABPerAccent < 0 || q.MOSPerAccent < 0 || q.TotalPerAccent < 0 {
		return fmt.Errorf("%s quotas must not be negative", kind)
	}
	if q.TotalPerAccent > 0 && q.XABPerAccent+q.MOSPerAccent > q.TotalPerAccent {
		return fmt.Errorf("%s quotas: xab (%d) + mos (%d) exceed total (%d)",
			kind, q.XABPerAccent, q.MOSPerAccent, q.TotalPerAccent)
	}
	return nil
}

// Validate checks structural consistency. It does not touch any input files.
func (c Config) Validate() error {
	if len(c.Accents) == 0 {
		return errors.New("no accents configured")
	}
	seen := make(map[models.Accent]bool)
	for _, a := range c.Accents {
		if a.Accent == "" {
			return errors.New("accent with empty code")
		}
		if seen[a.Accent] {
			return fmt.Errorf("accent %q listed twice", a.Accent)
		}
		seen[a.Accent] = true
	}

	groups := make(map[string]bool)
	for _, g := range c.Groups {
		if g.Name == "" {
			return errors.New("participant group with empty name")
		}
		if groups[g.Name] {
			return fmt.Errorf("participant group %q listed twice", g.Name)
		}
		groups[g.Name] = true
	}
	for _, a := range c.Accents {
		for _, g := range a.XABGroups {
			if !groups[g] {
				return fmt.Errorf("accent %q: unknown group %q", a.Accent, g)
			}
		}
	}

	if err := c.Natural.validate("natural"); err != nil {
		return err
	}
	return c.Synthetic.validate("synthetic")
}

// participants returns the members of the named groups (all groups when
// names is empty) in configuration order without duplicates.
func (c Config) participants(names []string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, g := range c.Groups {
		if len(names) > 0 && !want[g.Name] {
			continue
		}
		for _, e := range g.Emails {
			if e == "" || seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
