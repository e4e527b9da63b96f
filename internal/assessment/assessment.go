package assessment

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
)

// Option count bounds for a well-formed question. Authored content outside
// these bounds is a configuration error, caught before anything renders.
const (
	MinOptions = 2
	MaxOptions = 6
)

// DefaultPassThreshold is the pass mark applied when a bank does not set
// its own.
const DefaultPassThreshold = 0.7

var (
	ErrAnswerLocked     = errors.New("answer already locked for this question")
	ErrAttemptSubmitted = errors.New("attempt already submitted")
	ErrUnknownQuestion  = errors.New("question not part of this attempt")
	ErrOptionOutOfRange = errors.New("option index out of range")
	ErrStaleAttempt     = errors.New("question set changed since attempt started")
)

// Question is a single multiple-choice unit. Authored externally and never
// mutated by the engine.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Bank is an ordered question set with a pass mark.
type Bank struct {
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	PassThreshold float64    `json:"pass_threshold"`
	Questions     []Question `json:"questions"`
}

// LockPolicy controls when an answer becomes final. Inline checks lock on
// first selection; full quizzes stay revisable until submit.
type LockPolicy string

const (
	LockImmediate LockPolicy = "immediate"
	LockOnSubmit  LockPolicy = "on_submit"
)

// ParseLockPolicy validates a policy value from a request.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(s) {
	case LockImmediate, LockOnSubmit:
		return LockPolicy(s), nil
	}
	return "", fmt.Errorf("unknown lock policy %q", s)
}

// ValidateBank fails fast on malformed authored content.
func ValidateBank(b *Bank) error {
	if b == nil {
		return errors.New("bank is nil")
	}
	if b.Title == "" {
		return errors.New("bank title is required")
	}
	if len(b.Questions) == 0 {
		return errors.New("bank needs at least one question")
	}
	if b.PassThreshold < 0 || b.PassThreshold > 1 {
		return fmt.Errorf("pass threshold %v out of range", b.PassThreshold)
	}

	seenIDs := make(map[string]struct{}, len(b.Questions))
	for i, q := range b.Questions {
		if q.ID == "" {
			return fmt.Errorf("question %d: missing id", i)
		}
		if _, ok := seenIDs[q.ID]; ok {
			return fmt.Errorf("question %d: duplicate id %q", i, q.ID)
		}
		seenIDs[q.ID] = struct{}{}

		if q.Prompt == "" {
			return fmt.Errorf("question %q: missing prompt", q.ID)
		}
		if len(q.Options) < MinOptions {
			return fmt.Errorf("question %q: needs at least %d options", q.ID, MinOptions)
		}
		if len(q.Options) > MaxOptions {
			return fmt.Errorf("question %q: more than %d options", q.ID, MaxOptions)
		}
		seenOpts := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if _, ok := seenOpts[opt]; ok {
				return fmt.Errorf("question %q: duplicate option %q", q.ID, opt)
			}
			seenOpts[opt] = struct{}{}
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("question %q: correct index %d out of range", q.ID, q.CorrectIndex)
		}
	}
	return nil
}

// Threshold returns the bank's pass mark, or the default when unset.
func (b *Bank) Threshold() float64 {
	if b.PassThreshold == 0 {
		return DefaultPassThreshold
	}
	return b.PassThreshold
}

// IsCorrect reports whether selected matches the authored answer. An
// out-of-range index is simply not correct.
func IsCorrect(q Question, selected int) bool {
	return selected >= 0 && selected < len(q.Options) && selected == q.CorrectIndex
}

// Score aggregates answer state over an attempt. Answered distinguishes
// "not yet answered" from "answered incorrectly".
type Score struct {
	Correct  int `json:"correct"`
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// Ratio returns the fraction of all questions answered correctly.
func (s Score) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// Passed reports whether a final score meets the threshold.
func Passed(s Score, threshold float64) bool {
	return s.Ratio() >= threshold
}

// Fingerprint hashes the question content so a changed set invalidates any
// in-flight attempt against the old one.
func (b *Bank) Fingerprint() uint64 {
	h := fnv.New64a()
	for _, q := range b.Questions {
		_, _ = h.Write([]byte(q.ID))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(q.Prompt))
		_, _ = h.Write([]byte{0})
		for _, opt := range q.Options {
			_, _ = h.Write([]byte(opt))
			_, _ = h.Write([]byte{1})
		}
		_, _ = h.Write([]byte(strconv.Itoa(q.CorrectIndex)))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
