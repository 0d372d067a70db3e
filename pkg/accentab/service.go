// Package accentab generates randomized XAB and MOS listening-test
// assignments and serves them to participants one row at a time.
package accentab

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/AccentAB/pkg/accentab/batch"
	"github.com/himanishpuri/AccentAB/pkg/logger"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// ErrNoRunHistory is returned by Runs when the store keeps no history.
var ErrNoRunHistory = errors.New("store does not keep run history")

// GenerateReport pairs the audit record of a run with its full result.
type GenerateReport struct {
	Run    models.RunInfo
	Result *batch.Result
}

// assignmentService is the default implementation of the Service interface.
type assignmentService struct {
	store  Store
	log    Logger
	config *Config

	// mu makes answer check-then-write atomic and keeps regeneration from
	// interleaving with it.
	mu sync.Mutex
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("accentab")
	}

	store := cfg.Store
	if store == nil {
		var err error
		store, err = OpenStore(cfg.Backend, cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	return &assignmentService{
		store:  store,
		log:    cfg.Logger,
		config: cfg,
	}, nil
}

// Generate builds both tables from the plan and replaces the stored ones.
func (s *assignmentService) Generate(ctx context.Context, plan *Plan) (*GenerateReport, error) {
	if plan == nil {
		return nil, errors.New("nil plan")
	}
	cfg, err := plan.BatchConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	b, err := batch.NewBuilder(cfg, plan.Source(), s.log)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Infof("Generating %q with seed %d for %d accents", cfg.Name, cfg.Seed, len(cfg.Accents))
	res, err := b.Run(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	run := models.RunInfo{
		ID:        uuid.NewString(),
		Seed:      cfg.Seed,
		PlanName:  cfg.Name,
		MosRows:   len(res.MOS),
		XabRows:   len(res.XAB),
		CreatedAt: time.Now().UTC(),
	}
	if rec, ok := s.store.(RunRecorder); ok {
		if err := rec.RecordRun(ctx, run); err != nil {
			s.log.Warnf("Failed to record run %s: %v", run.ID, err)
		}
	}

	s.log.Infof("Run %s: %d MOS rows, %d XAB rows, %d soft errors",
		run.ID, run.MosRows, run.XabRows, len(res.SoftErrors))
	return &GenerateReport{Run: run, Result: res}, nil
}

func (s *assignmentService) MOSRow(ctx context.Context, email string, index int) (models.MosRow, error) {
	if index < 1 {
		return models.MosRow{}, fmt.Errorf("%s #%d: %w", email, index, models.ErrAnswerIndexOutOfRange)
	}
	return s.store.MOSRow(ctx, email, index)
}

func (s *assignmentService) XABRow(ctx context.Context, email string, index int) (models.XabRow, error) {
	if index < 1 {
		return models.XabRow{}, fmt.Errorf("%s #%d: %w", email, index, models.ErrAnswerIndexOutOfRange)
	}
	return s.store.XABRow(ctx, email, index)
}

func (s *assignmentService) TotalRows(ctx context.Context, table models.Table, email string) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	return s.store.TotalRows(ctx, table, email)
}

// SetAnswer records an answer exactly once. MOS answers are ratings 1 to 5,
// XAB answers are "a" or "b".
func (s *assignmentService) SetAnswer(ctx context.Context, table models.Table, email string, index int, answer string) error {
	answer, err := NormalizeAnswer(table, answer)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	answers, err := s.store.Answers(ctx, table, email)
	if err != nil {
		return err
	}
	if index < 1 || index > len(answers) {
		return fmt.Errorf("%s #%d: %w", email, index, models.ErrAnswerIndexOutOfRange)
	}
	if answers[index-1] != "" {
		return fmt.Errorf("%s %s #%d: %w", table, email, index, models.ErrAnswerAlreadyRecorded)
	}

	if err := s.store.SetAnswer(ctx, table, email, index, answer); err != nil {
		return err
	}
	s.log.Debugf("Recorded %s answer %q for %s #%d", table, answer, email, index)
	return nil
}

// NextIndex returns the first unanswered row, or 0 when every row is
// answered.
func (s *assignmentService) NextIndex(ctx context.Context, table models.Table, email string) (int, error) {
	p, err := s.progress(ctx, table, email)
	if err != nil {
		return 0, err
	}
	return p.Next, nil
}

// Progress reports both tables for the participant, MOS first.
func (s *assignmentService) Progress(ctx context.Context, email string) ([]models.Progress, error) {
	out := make([]models.Progress, 0, 2)
	for _, table := range []models.Table{models.TableMOS, models.TableXAB} {
		p, err := s.progress(ctx, table, email)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *assignmentService) progress(ctx context.Context, table models.Table, email string) (models.Progress, error) {
	if err := checkTable(table); err != nil {
		return models.Progress{}, err
	}
	answers, err := s.store.Answers(ctx, table, email)
	if err != nil {
		return models.Progress{}, err
	}

	p := models.Progress{Table: table, Email: email, Total: len(answers)}
	for i, a := range answers {
		if a != "" {
			p.Answered++
		} else if p.Next == 0 {
			p.Next = i + 1
		}
	}
	return p, nil
}

func (s *assignmentService) Runs(ctx context.Context) ([]models.RunInfo, error) {
	rec, ok := s.store.(RunRecorder)
	if !ok {
		return nil, ErrNoRunHistory
	}
	return rec.Runs(ctx)
}

// Close releases all resources held by the service.
func (s *assignmentService) Close() error {
	return s.store.Close()
}

func checkTable(table models.Table) error {
	if table != models.TableMOS && table != models.TableXAB {
		return fmt.Errorf("%q: %w", table, models.ErrUnknownTable)
	}
	return nil
}

// NormalizeAnswer validates an answer for the table and returns its stored
// form.
func NormalizeAnswer(table models.Table, answer string) (string, error) {
	answer = strings.TrimSpace(answer)
	switch table {
	case models.TableMOS:
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > 5 {
			return "", fmt.Errorf("MOS rating %q must be 1-5: %w", answer, models.ErrInvalidAnswer)
		}
		return strconv.Itoa(n), nil
	case models.TableXAB:
		a := strings.ToLower(answer)
		if a != "a" && a != "b" {
			return "", fmt.Errorf("XAB choice %q must be a or b: %w", answer, models.ErrInvalidAnswer)
		}
		return a, nil
	default:
		return "", fmt.Errorf("%q: %w", table, models.ErrUnknownTable)
	}
}
