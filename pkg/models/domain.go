package models

import (
	"strings"
	"time"
)

// Naturalness marks whether a sample is a natural recording or synthesized speech.
type Naturalness string

const (
	Natural   Naturalness = "n"
	Synthetic Naturalness = "s"
)

func (n Naturalness) Valid() bool {
	return n == Natural || n == Synthetic
}

// Accent is a lowercase regional accent tag such as "al" or "sp".
type Accent string

// NormalizeAccent trims and lowercases an accent tag.
func NormalizeAccent(s string) Accent {
	return Accent(strings.ToLower(strings.TrimSpace(s)))
}

// Table identifies one of the two assignment tables.
type Table string

const (
	TableMOS Table = "mos"
	TableXAB Table = "xab"
)

// ParseTable accepts "mos" or "xab" in any case.
func ParseTable(s string) (Table, bool) {
	switch Table(strings.ToLower(strings.TrimSpace(s))) {
	case TableMOS:
		return TableMOS, true
	case TableXAB:
		return TableXAB, true
	}
	return "", false
}

// AudioRef is a resolvable reference to one audio sample.
type AudioRef struct {
	Path    string      // URL or static path
	Accent  Accent      // accent of the speaker (or of the synthesis target)
	Natural Naturalness // natural recording or synthetic sample
}

// ParticipantGroup is a named set of participants sharing an accent affiliation.
type ParticipantGroup struct {
	Name   string
	Accent Accent
	Emails []string
}

// MosRow is one MOS rating assignment.
type MosRow struct {
	Email     string
	AudioFile string
	Natural   Naturalness
	Answer    string
}

// XabRow is one XAB preference assignment. AccentX always equals the accent
// of whichever of A and B is the correct candidate.
type XabRow struct {
	Email   string
	AudioX  string
	AudioA  string
	AudioB  string
	AccentX Accent
	AccentA Accent
	AccentB Accent
	Natural Naturalness
	Answer  string
}

// CorrectSide returns "a" or "b", whichever candidate carries AccentX.
func (r XabRow) CorrectSide() string {
	if r.AccentA == r.AccentX {
		return "a"
	}
	return "b"
}

// Answered reports whether a MOS row already carries an answer.
func (r MosRow) Answered() bool { return r.Answer != "" }

// Answered reports whether an XAB row already carries an answer.
func (r XabRow) Answered() bool { return r.Answer != "" }

// Progress summarizes how far a participant is through one table.
type Progress struct {
	Table    Table
	Email    string
	Answered int
	Total    int
	Next     int // 1-based index of the first unanswered row, 0 when done
}

// RunInfo describes one generation run for auditing.
type RunInfo struct {
	ID        string
	Seed      uint64
	PlanName  string
	MosRows   int
	XabRows   int
	CreatedAt time.Time
}
