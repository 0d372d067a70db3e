package accentab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/AccentAB/pkg/accentab/batch"
	"github.com/himanishpuri/AccentAB/pkg/accentab/distinct"
	"github.com/himanishpuri/AccentAB/pkg/accentab/metadata"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// Plan is the YAML description of one assignment battery.
type Plan struct {
	Name            string          `yaml:"name"`
	Seed            uint64          `yaml:"seed"`
	NaturalPrefix   string          `yaml:"natural_prefix"`
	SyntheticPrefix string          `yaml:"synthetic_prefix"`
	Natural         QuotaPlan       `yaml:"natural"`
	Synthetic       QuotaPlan       `yaml:"synthetic"`
	Fingerprint     FingerprintPlan `yaml:"fingerprint"`
	Accents         []AccentPlan    `yaml:"accents"`
	Groups          []GroupPlan     `yaml:"groups"`

	// baseDir resolves relative input paths.
	baseDir string
}

type QuotaPlan struct {
	XABPerAccent   int `yaml:"xab_per_accent"`
	MOSPerAccent   int `yaml:"mos_per_accent"`
	TotalPerAccent int `yaml:"total_per_accent"`
}

// FingerprintPlan selects the speaker key rule. Regex wins over Segment when
// both are set; Disabled turns the distinctness pass off.
type FingerprintPlan struct {
	Disabled    bool   `yaml:"disabled"`
	Delimiter   string `yaml:"delimiter"`
	Index       int    `yaml:"index"`
	Basename    bool   `yaml:"basename"`
	Regex       string `yaml:"regex"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type AccentPlan struct {
	Code      string    `yaml:"code"`
	Natural   InputPlan `yaml:"natural"`
	Synthetic InputPlan `yaml:"synthetic"`
	XABGroups []string  `yaml:"xab_groups"`
}

// InputPlan lists where an accent's candidates come from. Inline files,
// metadata rows and walked files are concatenated in that order.
type InputPlan struct {
	Files    []string `yaml:"files"`
	Metadata string   `yaml:"metadata"`
	Dir      string   `yaml:"dir"`
	// Root is what walked paths are made relative to. Defaults to Dir.
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	MinSeconds float64  `yaml:"min_seconds"`
	MaxSeconds float64  `yaml:"max_seconds"`
	// Placeholder stands in for every candidate when no other input is
	// configured, e.g. before synthetic audio has been rendered.
	Placeholder string `yaml:"placeholder"`
}

type GroupPlan struct {
	Name   string   `yaml:"name"`
	Accent string   `yaml:"accent"`
	Emails []string `yaml:"emails"`
}

// DefaultPlan carries the published battery's seed and quotas.
func DefaultPlan() *Plan {
	cfg := batch.DefaultConfig()
	return &Plan{
		Seed:        cfg.Seed,
		Natural:     QuotaPlan(cfg.Natural),
		Synthetic:   QuotaPlan(cfg.Synthetic),
		Fingerprint: FingerprintPlan{Delimiter: "/", Index: -2, MaxAttempts: cfg.MaxSwapAttempts},
	}
}

// LoadPlan reads a plan file. Relative input paths are resolved against the
// file's directory.
func LoadPlan(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plan: %w", err)
	}
	defer f.Close()

	p, err := ParsePlan(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// ParsePlan decodes a plan over DefaultPlan, so omitted fields keep their
// defaults.
func ParsePlan(r io.Reader, baseDir string) (*Plan, error) {
	p := DefaultPlan()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	p.baseDir = baseDir
	return p, nil
}

func (p *Plan) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.baseDir == "" {
		return path
	}
	return filepath.Join(p.baseDir, path)
}

func (p *Plan) fingerprinter() (distinct.Fingerprinter, error) {
	fp := p.Fingerprint
	switch {
	case fp.Disabled:
		return nil, nil
	case fp.Regex != "":
		return distinct.NewRegexFingerprinter(fp.Regex)
	default:
		seg := distinct.SegmentFingerprinter{Delimiter: fp.Delimiter, Index: fp.Index, Basename: fp.Basename}
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("fingerprint: %w", err)
		}
		return seg, nil
	}
}

// BatchConfig converts the plan into the builder's configuration.
func (p *Plan) BatchConfig() (batch.Config, error) {
	fp, err := p.fingerprinter()
	if err != nil {
		return batch.Config{}, err
	}

	cfg := batch.Config{
		Name:            p.Name,
		Seed:            p.Seed,
		Natural:         batch.Quota(p.Natural),
		Synthetic:       batch.Quota(p.Synthetic),
		NaturalPrefix:   p.NaturalPrefix,
		SyntheticPrefix: p.SyntheticPrefix,
		Fingerprinter:   fp,
		MaxSwapAttempts: p.Fingerprint.MaxAttempts,
	}
	for _, a := range p.Accents {
		cfg.Accents = append(cfg.Accents, batch.AccentSpec{
			Accent:    models.NormalizeAccent(a.Code),
			XABGroups: a.XABGroups,
		})
	}
	for _, g := range p.Groups {
		cfg.Groups = append(cfg.Groups, models.ParticipantGroup{
			Name:   g.Name,
			Accent: models.NormalizeAccent(g.Accent),
			Emails: slices.Clone(g.Emails),
		})
	}
	return cfg, cfg.Validate()
}

// Source returns the candidate source described by the plan's inputs.
func (p *Plan) Source() batch.Source {
	return planSource{plan: p}
}

type planSource struct {
	plan *Plan
}

func (s planSource) accent(acc models.Accent) (AccentPlan, bool) {
	for _, a := range s.plan.Accents {
		if models.NormalizeAccent(a.Code) == acc {
			return a, true
		}
	}
	return AccentPlan{}, false
}

func (s planSource) NaturalFiles(ctx context.Context, acc models.Accent) ([]string, error) {
	a, ok := s.accent(acc)
	if !ok {
		return nil, fmt.Errorf("accent %s: %w", acc, models.ErrNoMetadata)
	}
	return s.load(ctx, a.Natural, s.plan.Natural.TotalPerAccent)
}

func (s planSource) SyntheticFiles(ctx context.Context, acc models.Accent) ([]string, error) {
	a, ok := s.accent(acc)
	if !ok {
		return nil, fmt.Errorf("accent %s: %w", acc, models.ErrNoMetadata)
	}
	return s.load(ctx, a.Synthetic, s.plan.Synthetic.TotalPerAccent)
}

func (s planSource) load(ctx context.Context, in InputPlan, total int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var skipped []error
	out := slices.Clone(in.Files)
	if in.Metadata != "" {
		rows, err := metadata.ReadTSV(s.plan.resolve(in.Metadata))
		if err != nil {
			return nil, fmt.Errorf("loading metadata: %w", err)
		}
		out = append(out, rows...)
	}
	if in.Dir != "" {
		dir := s.plan.resolve(in.Dir)
		root := dir
		if in.Root != "" {
			root = s.plan.resolve(in.Root)
		}
		files, bad, err := metadata.WalkAudio(dir, metadata.WalkOptions{
			StaticRoot:  root,
			Extensions:  in.Extensions,
			MinDuration: seconds(in.MinSeconds),
			MaxDuration: seconds(in.MaxSeconds),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
		skipped = append(skipped, bad...)
	}

	if len(out) == 0 && in.Placeholder != "" {
		for range max(total, 1) {
			out = append(out, in.Placeholder)
		}
	}
	if len(skipped) > 0 {
		return out, &batch.SkippedInputsError{Errs: skipped}
	}
	return out, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
