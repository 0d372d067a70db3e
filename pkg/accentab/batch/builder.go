// Package batch turns per-accent candidate pools into the complete MOS and
// XAB assignment tables for every participant.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/himanishpuri/AccentAB/pkg/accentab/distinct"
	"github.com/himanishpuri/AccentAB/pkg/accentab/pool"
	"github.com/himanishpuri/AccentAB/pkg/accentab/rows"
	"github.com/himanishpuri/AccentAB/pkg/models"
	"github.com/himanishpuri/AccentAB/pkg/utils"
)

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Debugf(string, ...any) {}

// NewRNG returns the generator a run with the given seed draws from.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Result is everything a run produced.
type Result struct {
	MOS []models.MosRow
	XAB []models.XabRow

	// MOSRefs counts references consumed into MOS rows per accent.
	MOSRefs map[models.Accent]int
	// XABPairings counts distinct XAB pairings per accent.
	XABPairings map[models.Accent]int

	// Excluded holds accents dropped at initialization and why.
	Excluded    map[models.Accent]error
	SoftErrors  []error
	Transitions []Transition
}

// Context is the mutable state of one run. It owns the random stream and
// every pool; all randomized decisions draw from rng in a fixed order.
type Context struct {
	rng    *rand.Rand
	active []AccentSpec

	natural   map[models.Accent]*pool.Pool
	synthetic map[models.Accent]*pool.Pool
	foils     map[models.Accent]*pool.Pool

	mosSynthetic *pool.Pool
	mosNatural   *pool.Pool

	result *Result
}

func (gc *Context) enter(table models.Table, s State) {
	gc.result.Transitions = append(gc.result.Transitions, Transition{Table: table, State: s})
}

// Builder runs the generation state machine.
type Builder struct {
	cfg Config
	src Source
	log Logger
}

func NewBuilder(cfg Config, src Source, log Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation config: %w", err)
	}
	if src == nil {
		return nil, errors.New("nil candidate source")
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Builder{cfg: cfg, src: src, log: log}, nil
}

// Run generates both tables. When sink is non-nil each table is written to it
// as soon as it is complete. Per-row and per-accent problems are collected in
// Result.SoftErrors; an error is returned only when nothing can be generated
// or the sink fails.
func (b *Builder) Run(ctx context.Context, sink Sink) (*Result, error) {
	gc := &Context{
		rng:       NewRNG(b.cfg.Seed),
		natural:   make(map[models.Accent]*pool.Pool),
		synthetic: make(map[models.Accent]*pool.Pool),
		foils:     make(map[models.Accent]*pool.Pool),
		result: &Result{
			MOSRefs:     make(map[models.Accent]int),
			XABPairings: make(map[models.Accent]int),
			Excluded:    make(map[models.Accent]error),
		},
	}
	res := gc.result

	gc.enter("", Initializing)
	if err := b.initialize(ctx, gc); err != nil {
		return nil, err
	}

	gc.enter("", PartitioningPools)
	b.partition(gc)

	gc.enter(models.TableMOS, GeneratingRows)
	b.generateMOS(gc)
	gc.enter(models.TableMOS, Shuffling)
	gc.rng.Shuffle(len(res.MOS), func(i, j int) { res.MOS[i], res.MOS[j] = res.MOS[j], res.MOS[i] })
	slices.SortStableFunc(res.MOS, func(a, b models.MosRow) int { return strings.Compare(a.Email, b.Email) })
	if sink != nil {
		if err := sink.WriteMOS(ctx, res.MOS); err != nil {
			return nil, fmt.Errorf("persisting MOS table: %w", err)
		}
		gc.enter(models.TableMOS, Persisted)
	}
	b.log.Infof("MOS table: %d rows", len(res.MOS))

	gc.enter(models.TableXAB, GeneratingRows)
	for _, spec := range gc.active {
		b.generateXAB(gc, spec)
	}
	gc.enter(models.TableXAB, Shuffling)
	gc.rng.Shuffle(len(res.XAB), func(i, j int) { res.XAB[i], res.XAB[j] = res.XAB[j], res.XAB[i] })
	slices.SortStableFunc(res.XAB, func(a, b models.XabRow) int { return strings.Compare(a.Email, b.Email) })
	if sink != nil {
		if err := sink.WriteXAB(ctx, res.XAB); err != nil {
			return nil, fmt.Errorf("persisting XAB table: %w", err)
		}
		gc.enter(models.TableXAB, Persisted)
	}
	b.log.Infof("XAB table: %d rows", len(res.XAB))

	return res, nil
}

func (b *Builder) soft(gc *Context, err error) {
	b.log.Warnf("%v", err)
	gc.result.SoftErrors = append(gc.result.SoftErrors, err)
}

// initialize loads, validates, caps and prefixes every accent's candidates.
// An accent without natural input is excluded from the run.
func (b *Builder) initialize(ctx context.Context, gc *Context) error {
	for _, spec := range b.cfg.Accents {
		acc := spec.Accent

		names, err := b.src.NaturalFiles(ctx, acc)
		err = b.absorbSkipped(gc, acc, models.Natural, err)
		if err == nil && len(names) == 0 {
			err = models.ErrNoMetadata
		}
		if err != nil {
			err = fmt.Errorf("accent %s: natural candidates: %w", acc, err)
			b.log.Errorf("%v; accent excluded from this run", err)
			gc.result.Excluded[acc] = err
			continue
		}
		natural := b.refs(gc, acc, names, models.Natural, b.cfg.NaturalPrefix, b.cfg.Natural.TotalPerAccent)
		if len(natural) == 0 {
			err := fmt.Errorf("accent %s: every natural candidate is malformed: %w", acc, models.ErrNoMetadata)
			b.log.Errorf("%v; accent excluded from this run", err)
			gc.result.Excluded[acc] = err
			continue
		}

		names, err = b.src.SyntheticFiles(ctx, acc)
		err = b.absorbSkipped(gc, acc, models.Synthetic, err)
		if err != nil {
			b.soft(gc, fmt.Errorf("accent %s: synthetic candidates: %w", acc, err))
			names = nil
		}
		synthetic := b.refs(gc, acc, names, models.Synthetic, b.cfg.SyntheticPrefix, b.cfg.Synthetic.TotalPerAccent)
		if len(synthetic) == 0 {
			b.log.Warnf("accent %s has no synthetic candidates", acc)
		}

		gc.active = append(gc.active, spec)
		gc.natural[acc] = pool.New(string(acc)+"/natural", natural...)
		gc.synthetic[acc] = pool.New(string(acc)+"/synthetic", synthetic...)
		gc.foils[acc] = pool.New(string(acc) + "/foil")
		b.log.Debugf("accent %s: %d natural, %d synthetic candidates", acc, len(natural), len(synthetic))
	}

	if len(gc.active) == 0 {
		return fmt.Errorf("no accent has usable input: %w", models.ErrNoMetadata)
	}
	return nil
}

// absorbSkipped records the entries a source left out as soft errors and
// returns whatever error remains.
func (b *Builder) absorbSkipped(gc *Context, acc models.Accent, n models.Naturalness, err error) error {
	var skipped *SkippedInputsError
	if !errors.As(err, &skipped) {
		return err
	}
	for _, e := range skipped.Errs {
		b.soft(gc, fmt.Errorf("accent %s: %s candidate skipped: %w", acc, kindName(n), e))
	}
	return nil
}

func (b *Builder) refs(gc *Context, acc models.Accent, names []string, n models.Naturalness, prefix string, limit int) []models.AudioRef {
	out := make([]models.AudioRef, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			b.soft(gc, fmt.Errorf("accent %s: %s candidate %d: %w", acc, kindName(n), i+1,
				&models.MalformedReferenceError{Reason: "empty file name"}))
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, models.AudioRef{Path: utils.JoinURL(prefix, name), Accent: acc, Natural: n})
	}
	return out
}

func kindName(n models.Naturalness) string {
	if n == models.Natural {
		return "natural"
	}
	return "synthetic"
}

// interleave takes up to k references from each accent's pool, alternating
// accents, so the resulting sub-pool is accent-balanced.
func (gc *Context) interleave(name string, from map[models.Accent]*pool.Pool, k int) *pool.Pool {
	parts := make([]*pool.Pool, len(gc.active))
	for i, spec := range gc.active {
		parts[i] = from[spec.Accent].Split(name+"/"+string(spec.Accent), k)
	}

	out := pool.New(name)
	for i := 0; i < k; i++ {
		for _, p := range parts {
			if ref, err := p.PopFront(); err == nil {
				out.Push(ref)
			}
		}
	}
	return out
}

// partition shuffles every pool and splits it into disjoint sub-pools: MOS,
// foils reserved for other accents, and what remains for XAB X and correct
// candidates.
func (b *Builder) partition(gc *Context) {
	for _, spec := range gc.active {
		gc.natural[spec.Accent].Shuffle(gc.rng)
	}
	for _, spec := range gc.active {
		gc.synthetic[spec.Accent].Shuffle(gc.rng)
	}

	gc.mosSynthetic = gc.interleave("mos/synthetic", gc.synthetic, b.cfg.Synthetic.MOSPerAccent)
	gc.mosNatural = gc.interleave("mos/natural", gc.natural, b.cfg.Natural.MOSPerAccent)

	if len(gc.active) < 2 {
		b.log.Warnf("XAB needs at least two accents, have %d; no XAB rows will be generated", len(gc.active))
		return
	}

	reserved := gc.interleave("foil/reserved", gc.synthetic, b.cfg.Synthetic.XABPerAccent/len(gc.active))

	// Each source accent hands its reserved samples to the other accents in
	// turn. With two accents every sample goes to the single other accent.
	turn := make(map[models.Accent]int)
	for _, ref := range reserved.Items() {
		var targets []models.Accent
		for _, spec := range gc.active {
			if spec.Accent != ref.Accent {
				targets = append(targets, spec.Accent)
			}
		}
		target := targets[turn[ref.Accent]%len(targets)]
		turn[ref.Accent]++
		gc.foils[target].Push(ref)
	}

	for _, spec := range gc.active {
		b.log.Debugf("accent %s: xab pools x=%d correct=%d foil=%d", spec.Accent,
			gc.natural[spec.Accent].Len(), gc.synthetic[spec.Accent].Len(), gc.foils[spec.Accent].Len())
	}
}

func (b *Builder) generateMOS(gc *Context) {
	audience := b.cfg.participants(nil)
	if len(audience) == 0 {
		b.log.Warnf("no participants configured; MOS table will be empty")
	}

	steps := []struct {
		sub   *pool.Pool
		limit int
	}{
		{gc.mosSynthetic, b.cfg.Synthetic.MOSPerAccent * len(gc.active)},
		{gc.mosNatural, b.cfg.Natural.MOSPerAccent * len(gc.active)},
	}
	for _, step := range steps {
		for i := 0; i < step.limit; i++ {
			ref, err := step.sub.PopFront()
			if err != nil {
				b.log.Debugf("%v after %d references", err, i)
				break
			}
			out, err := rows.MosFanOut(audience, ref, ref.Natural)
			if err != nil {
				b.soft(gc, fmt.Errorf("%s reference %d: %w", step.sub.Name(), i+1, err))
				continue
			}
			gc.result.MOS = append(gc.result.MOS, out...)
			gc.result.MOSRefs[ref.Accent]++
		}
	}
}

func (b *Builder) generateXAB(gc *Context, spec AccentSpec) {
	acc := spec.Accent
	x, correct, foil := gc.natural[acc], gc.synthetic[acc], gc.foils[acc]

	audience := b.cfg.participants(spec.XABGroups)
	if len(audience) == 0 {
		b.log.Warnf("accent %s: no XAB participants", acc)
	}

	var skip []distinct.Report
	if b.cfg.Fingerprinter != nil {
		// Only foil and x are reordered; correct stays fixed so both
		// guarantees hold at once.
		skip = append(skip,
			distinct.Enforce(correct, foil, b.cfg.Fingerprinter, gc.rng, b.cfg.MaxSwapAttempts),
			distinct.Enforce(correct, x, b.cfg.Fingerprinter, gc.rng, b.cfg.MaxSwapAttempts))
	}

	limit := min(b.cfg.Natural.XABPerAccent, b.cfg.Synthetic.XABPerAccent)
	for step := 0; step < limit; step++ {
		triple, err := rows.DrawTriple(x, correct, foil)
		if err != nil {
			b.log.Infof("accent %s: stopping XAB after %d pairings: %v", acc, gc.result.XABPairings[acc], err)
			break
		}

		if reason := skipReason(skip, step); reason != nil {
			b.soft(gc, fmt.Errorf("accent %s: XAB pairing %d skipped: %w", acc, step+1, reason))
			continue
		}

		out, err := rows.XabFanOut(gc.rng, audience, triple.X, triple.Correct, triple.Wrong,
			acc, triple.Wrong.Accent, triple.Correct.Natural)
		if err != nil {
			b.soft(gc, fmt.Errorf("accent %s: XAB pairing %d: %w", acc, step+1, err))
			continue
		}
		gc.result.XAB = append(gc.result.XAB, out...)
		gc.result.XABPairings[acc]++
	}
}

func skipReason(reports []distinct.Report, step int) error {
	for _, r := range reports {
		if err, ok := r.Skipped[step]; ok {
			return err
		}
	}
	return nil
}
