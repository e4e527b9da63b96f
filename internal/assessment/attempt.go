package assessment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Feedback is the per-question reveal: correctness, the authored answer and
// its explanation.
type Feedback struct {
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correct_index"`
	Explanation  string `json:"explanation,omitempty"`
}

// Result is the outcome of a submitted attempt.
type Result struct {
	Score    Score               `json:"score"`
	Passed   bool                `json:"passed"`
	Feedback map[string]Feedback `json:"feedback"`
}

// Attempt tracks one learner's pass over a bank. Purely in-memory: attempts
// are a learning aid, not a graded record, and are never persisted.
type Attempt struct {
	ID     string
	Policy LockPolicy

	mu          sync.Mutex
	bank        *Bank
	fingerprint uint64
	answers     map[string]int
	submitted   bool
	startedAt   time.Time
}

func newAttempt(bank *Bank, policy LockPolicy) *Attempt {
	return &Attempt{
		ID:          uuid.NewString(),
		Policy:      policy,
		bank:        bank,
		fingerprint: bank.Fingerprint(),
		answers:     make(map[string]int, len(bank.Questions)),
		startedAt:   time.Now(),
	}
}

// Answer records a selection. Under LockImmediate the first answer is final
// and feedback is returned at once; under LockOnSubmit answers stay
// revisable and feedback is withheld until Submit.
func (a *Attempt) Answer(questionID string, optionIndex int) (*Feedback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.submitted {
		return nil, ErrAttemptSubmitted
	}

	q, ok := a.question(questionID)
	if !ok {
		return nil, ErrUnknownQuestion
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return nil, ErrOptionOutOfRange
	}

	if a.Policy == LockImmediate {
		if _, answered := a.answers[questionID]; answered {
			return nil, ErrAnswerLocked
		}
		a.answers[questionID] = optionIndex
		fb := feedbackFor(q, optionIndex)
		return &fb, nil
	}

	a.answers[questionID] = optionIndex
	return nil, nil
}

// Progress scores only what has been answered so far. Unanswered questions
// are excluded, not counted as incorrect.
func (a *Attempt) Progress() Score {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scoreLocked()
}

// Submit locks the attempt and forces a final score: unanswered questions
// count as incorrect. Safe to call once; repeat calls fail.
func (a *Attempt) Submit() (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.submitted {
		return nil, ErrAttemptSubmitted
	}
	a.submitted = true

	score := a.scoreLocked()
	feedback := make(map[string]Feedback, len(a.bank.Questions))
	for _, q := range a.bank.Questions {
		selected, answered := a.answers[q.ID]
		if !answered {
			selected = -1
		}
		feedback[q.ID] = feedbackFor(q, selected)
	}

	return &Result{
		Score:    score,
		Passed:   Passed(score, a.bank.Threshold()),
		Feedback: feedback,
	}, nil
}

// Submitted reports whether the attempt has been finalised.
func (a *Attempt) Submitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitted
}

func (a *Attempt) scoreLocked() Score {
	score := Score{Total: len(a.bank.Questions)}
	for _, q := range a.bank.Questions {
		selected, answered := a.answers[q.ID]
		if !answered {
			continue
		}
		score.Answered++
		if IsCorrect(q, selected) {
			score.Correct++
		}
	}
	return score
}

func (a *Attempt) question(id string) (Question, bool) {
	for _, q := range a.bank.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func feedbackFor(q Question, selected int) Feedback {
	return Feedback{
		Correct:      IsCorrect(q, selected),
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
	}
}
