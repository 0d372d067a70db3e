package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/AccentAB/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "accentab.sqlite3"
const errDBClientNil = "db client is nil"

type SQLiteStore struct {
	DB *gorm.DB
}

// MosAssignment is one stored MOS row. Seq is the participant-local 1-based
// index assigned in write order.
type MosAssignment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Email     string `gorm:"not null;uniqueIndex:idx_mos_email_seq,priority:1"`
	Seq       int    `gorm:"not null;uniqueIndex:idx_mos_email_seq,priority:2"`
	AudioFile string `gorm:"not null"`
	Natural   string `gorm:"type:varchar(1);not null"`
	Answer    string
}

func (MosAssignment) TableName() string { return "mos_assignments" }

type XabAssignment struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Email      string `gorm:"not null;uniqueIndex:idx_xab_email_seq,priority:1"`
	Seq        int    `gorm:"not null;uniqueIndex:idx_xab_email_seq,priority:2"`
	AudioFileX string `gorm:"not null"`
	AudioFileA string `gorm:"not null"`
	AudioFileB string `gorm:"not null"`
	AccentX    string `gorm:"type:varchar(8)"`
	AccentA    string `gorm:"type:varchar(8)"`
	AccentB    string `gorm:"type:varchar(8)"`
	Natural    string `gorm:"type:varchar(1);not null"`
	Answer     string
}

func (XabAssignment) TableName() string { return "xab_assignments" }

// GenerationRun records the seed and size of each generation written here.
type GenerationRun struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Seed      uint64
	PlanName  string
	MosRows   int
	XabRows   int
	CreatedAt time.Time
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// One connection serializes writers; SQLite allows a single writer anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&MosAssignment{}, &XabAssignment{}, &GenerationRun{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStore{DB: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) db(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	return s.DB.WithContext(ctx), nil
}

// seqCounter hands out participant-local indexes in write order.
type seqCounter map[string]int

func (c seqCounter) next(email string) int {
	c[email]++
	return c[email]
}

func (s *SQLiteStore) WriteMOS(ctx context.Context, rows []models.MosRow) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}

	seq := make(seqCounter)
	entries := make([]MosAssignment, len(rows))
	for i, r := range rows {
		entries[i] = MosAssignment{
			Email:     r.Email,
			Seq:       seq.next(r.Email),
			AudioFile: r.AudioFile,
			Natural:   string(r.Natural),
			Answer:    r.Answer,
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&MosAssignment{}).Error; err != nil {
			return fmt.Errorf("clearing MOS table: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, 500).Error; err != nil {
			return fmt.Errorf("batch insert MOS rows: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) WriteXAB(ctx context.Context, rows []models.XabRow) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}

	seq := make(seqCounter)
	entries := make([]XabAssignment, len(rows))
	for i, r := range rows {
		entries[i] = XabAssignment{
			Email:      r.Email,
			Seq:        seq.next(r.Email),
			AudioFileX: r.AudioX,
			AudioFileA: r.AudioA,
			AudioFileB: r.AudioB,
			AccentX:    string(r.AccentX),
			AccentA:    string(r.AccentA),
			AccentB:    string(r.AccentB),
			Natural:    string(r.Natural),
			Answer:     r.Answer,
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&XabAssignment{}).Error; err != nil {
			return fmt.Errorf("clearing XAB table: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, 500).Error; err != nil {
			return fmt.Errorf("batch insert XAB rows: %w", err)
		}
		return nil
	})
}

func notFound(err error, email string, index int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s #%d: %w", email, index, models.ErrAnswerIndexOutOfRange)
	}
	return fmt.Errorf("querying %s #%d: %w", email, index, err)
}

func (s *SQLiteStore) MOSRow(ctx context.Context, email string, index int) (models.MosRow, error) {
	db, err := s.db(ctx)
	if err != nil {
		return models.MosRow{}, err
	}

	var row MosAssignment
	if err := db.Where("email = ? AND seq = ?", email, index).First(&row).Error; err != nil {
		return models.MosRow{}, notFound(err, email, index)
	}
	return models.MosRow{
		Email:     row.Email,
		AudioFile: row.AudioFile,
		Natural:   models.Naturalness(row.Natural),
		Answer:    row.Answer,
	}, nil
}

func (s *SQLiteStore) XABRow(ctx context.Context, email string, index int) (models.XabRow, error) {
	db, err := s.db(ctx)
	if err != nil {
		return models.XabRow{}, err
	}

	var row XabAssignment
	if err := db.Where("email = ? AND seq = ?", email, index).First(&row).Error; err != nil {
		return models.XabRow{}, notFound(err, email, index)
	}
	return models.XabRow{
		Email:   row.Email,
		AudioX:  row.AudioFileX,
		AudioA:  row.AudioFileA,
		AudioB:  row.AudioFileB,
		AccentX: models.Accent(row.AccentX),
		AccentA: models.Accent(row.AccentA),
		AccentB: models.Accent(row.AccentB),
		Natural: models.Naturalness(row.Natural),
		Answer:  row.Answer,
	}, nil
}

func tableModel(table models.Table) (any, error) {
	switch table {
	case models.TableMOS:
		return &MosAssignment{}, nil
	case models.TableXAB:
		return &XabAssignment{}, nil
	}
	return nil, fmt.Errorf("%q: %w", table, models.ErrUnknownTable)
}

func (s *SQLiteStore) TotalRows(ctx context.Context, table models.Table, email string) (int, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	m, err := tableModel(table)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(m).Where("email = ?", email).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return int(count), nil
}

func (s *SQLiteStore) Answers(ctx context.Context, table models.Table, email string) ([]string, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	m, err := tableModel(table)
	if err != nil {
		return nil, err
	}

	var answers []string
	if err := db.Model(m).Where("email = ?", email).Order("seq").Pluck("answer", &answers).Error; err != nil {
		return nil, fmt.Errorf("listing answers: %w", err)
	}
	return answers, nil
}

func (s *SQLiteStore) SetAnswer(ctx context.Context, table models.Table, email string, index int, answer string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	m, err := tableModel(table)
	if err != nil {
		return err
	}

	res := db.Model(m).Where("email = ? AND seq = ?", email, index).Update("answer", answer)
	if res.Error != nil {
		return fmt.Errorf("updating answer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s #%d: %w", email, index, models.ErrAnswerIndexOutOfRange)
	}
	return nil
}

// RecordRun stores an audit entry for a generation run.
func (s *SQLiteStore) RecordRun(ctx context.Context, run models.RunInfo) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	entry := GenerationRun{
		ID:        run.ID,
		Seed:      run.Seed,
		PlanName:  run.PlanName,
		MosRows:   run.MosRows,
		XabRows:   run.XabRows,
		CreatedAt: run.CreatedAt,
	}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Runs lists recorded generation runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]models.RunInfo, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	var rows []GenerationRun
	if err := db.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]models.RunInfo, len(rows))
	for i, r := range rows {
		out[i] = models.RunInfo{
			ID: r.ID, Seed: r.Seed, PlanName: r.PlanName,
			MosRows: r.MosRows, XabRows: r.XabRows, CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}
