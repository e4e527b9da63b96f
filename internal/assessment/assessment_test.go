package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoOptionBank() *Bank {
	return &Bank{
		Slug:  "part-p-basics",
		Title: "Part P Basics",
		Questions: []Question{
			{
				ID:           "q1",
				Prompt:       "Which document certifies a new circuit?",
				Options:      []string{"EIC", "Minor works certificate"},
				CorrectIndex: 0,
				Explanation:  "A new circuit needs a full Electrical Installation Certificate.",
			},
			{
				ID:           "q2",
				Prompt:       "What is the UK nominal supply voltage?",
				Options:      []string{"240V", "230V", "220V"},
				CorrectIndex: 1,
			},
		},
	}
}

func TestValidateBank(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Bank)
		wantErr string
	}{
		{name: "valid", mutate: func(b *Bank) {}},
		{
			name:    "missing title",
			mutate:  func(b *Bank) { b.Title = "" },
			wantErr: "title",
		},
		{
			name:    "no questions",
			mutate:  func(b *Bank) { b.Questions = nil },
			wantErr: "at least one question",
		},
		{
			name:    "threshold above one",
			mutate:  func(b *Bank) { b.PassThreshold = 1.5 },
			wantErr: "out of range",
		},
		{
			name:    "missing question id",
			mutate:  func(b *Bank) { b.Questions[0].ID = "" },
			wantErr: "missing id",
		},
		{
			name:    "duplicate question id",
			mutate:  func(b *Bank) { b.Questions[1].ID = "q1" },
			wantErr: "duplicate id",
		},
		{
			name:    "missing prompt",
			mutate:  func(b *Bank) { b.Questions[0].Prompt = "" },
			wantErr: "missing prompt",
		},
		{
			name:    "single option",
			mutate:  func(b *Bank) { b.Questions[0].Options = []string{"only"} },
			wantErr: "at least 2 options",
		},
		{
			name: "too many options",
			mutate: func(b *Bank) {
				b.Questions[0].Options = []string{"a", "b", "c", "d", "e", "f", "g"}
			},
			wantErr: "more than 6",
		},
		{
			name:    "duplicate option text",
			mutate:  func(b *Bank) { b.Questions[0].Options = []string{"EIC", "EIC"} },
			wantErr: "duplicate option",
		},
		{
			name:    "correct index out of range",
			mutate:  func(b *Bank) { b.Questions[0].CorrectIndex = 2 },
			wantErr: "out of range",
		},
		{
			name:    "negative correct index",
			mutate:  func(b *Bank) { b.Questions[0].CorrectIndex = -1 },
			wantErr: "out of range",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bank := twoOptionBank()
			tc.mutate(bank)
			err := ValidateBank(bank)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateBankNil(t *testing.T) {
	assert.Error(t, ValidateBank(nil))
}

func TestIsCorrect(t *testing.T) {
	q := Question{Options: []string{"a", "b", "c"}, CorrectIndex: 1}

	assert.True(t, IsCorrect(q, 1))
	assert.False(t, IsCorrect(q, 0))
	assert.False(t, IsCorrect(q, -1))
	assert.False(t, IsCorrect(q, 3))
	assert.False(t, IsCorrect(q, 99))
}

func TestThresholdDefault(t *testing.T) {
	bank := twoOptionBank()
	assert.Equal(t, DefaultPassThreshold, bank.Threshold())

	bank.PassThreshold = 0.9
	assert.Equal(t, 0.9, bank.Threshold())
}

func TestScoreRatioAndPassed(t *testing.T) {
	assert.Equal(t, 0.0, Score{}.Ratio())

	s := Score{Correct: 7, Answered: 10, Total: 10}
	assert.InDelta(t, 0.7, s.Ratio(), 1e-9)
	assert.True(t, Passed(s, 0.7))
	assert.False(t, Passed(Score{Correct: 6, Answered: 10, Total: 10}, 0.7))
}

func TestParseLockPolicy(t *testing.T) {
	for _, valid := range []string{"immediate", "on_submit"} {
		p, err := ParseLockPolicy(valid)
		require.NoError(t, err)
		assert.Equal(t, LockPolicy(valid), p)
	}

	_, err := ParseLockPolicy("eventually")
	assert.Error(t, err)
	_, err = ParseLockPolicy("")
	assert.Error(t, err)
}

func TestFingerprintTracksContent(t *testing.T) {
	base := twoOptionBank()
	same := twoOptionBank()
	assert.Equal(t, base.Fingerprint(), same.Fingerprint())

	reworded := twoOptionBank()
	reworded.Questions[0].Prompt = "Which certificate covers a new circuit?"
	assert.NotEqual(t, base.Fingerprint(), reworded.Fingerprint())

	reanswered := twoOptionBank()
	reanswered.Questions[1].CorrectIndex = 0
	assert.NotEqual(t, base.Fingerprint(), reanswered.Fingerprint())

	reoptioned := twoOptionBank()
	reoptioned.Questions[1].Options = []string{"240V", "230V", "110V"}
	assert.NotEqual(t, base.Fingerprint(), reoptioned.Fingerprint())
}
