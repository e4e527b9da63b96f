package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"elecmate/internal/assessment"
	"elecmate/internal/database"
)

// QuizHandler serves question banks and runs in-memory attempts against
// them. Attempts are a learning aid and never touch the database.
type QuizHandler struct {
	db       *gorm.DB
	attempts *assessment.Store
	logger   *slog.Logger
}

// NewQuizHandler constructs the quiz handler.
func NewQuizHandler(db *gorm.DB, attempts *assessment.Store, logger *slog.Logger) *QuizHandler {
	return &QuizHandler{db: db, attempts: attempts, logger: logger}
}

type bankSummary struct {
	Slug          string  `json:"slug"`
	Title         string  `json:"title"`
	QuestionCount int     `json:"question_count"`
	PassThreshold float64 `json:"pass_threshold"`
}

// ListBanks returns every published question bank, without question content.
func (h *QuizHandler) ListBanks(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger)

	var rows []database.QuestionBank
	if err := h.db.WithContext(ctx).Order("slug asc").Find(&rows).Error; err != nil {
		logger.Error("list banks failed", slog.Any("error", err))
		Internal(c, "failed to list question banks")
		return
	}

	summaries := make([]bankSummary, 0, len(rows))
	for _, row := range rows {
		bank, err := bankFromRow(&row)
		if err != nil {
			logger.Error("bank payload corrupt", slog.String("slug", row.Slug), slog.Any("error", err))
			continue
		}
		summaries = append(summaries, bankSummary{
			Slug:          bank.Slug,
			Title:         bank.Title,
			QuestionCount: len(bank.Questions),
			PassThreshold: bank.Threshold(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"banks": summaries})
}

type publicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// GetBank returns a bank's questions with answers and explanations stripped.
func (h *QuizHandler) GetBank(c *gin.Context) {
	bank, ok := h.loadBank(c)
	if !ok {
		return
	}

	questions := make([]publicQuestion, 0, len(bank.Questions))
	for _, q := range bank.Questions {
		questions = append(questions, publicQuestion{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"slug":           bank.Slug,
		"title":          bank.Title,
		"pass_threshold": bank.Threshold(),
		"questions":      questions,
	})
}

type beginAttemptRequest struct {
	LockPolicy string `json:"lock_policy"`
}

// BeginAttempt opens a fresh attempt against a bank.
func (h *QuizHandler) BeginAttempt(c *gin.Context) {
	// Body is optional; an empty body means the default policy.
	var req beginAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, err.Error())
		return
	}

	policy := assessment.LockOnSubmit
	if strings.TrimSpace(req.LockPolicy) != "" {
		parsed, err := assessment.ParseLockPolicy(req.LockPolicy)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		policy = parsed
	}

	bank, ok := h.loadBank(c)
	if !ok {
		return
	}

	attempt, err := h.attempts.Begin(bank, policy)
	if err != nil {
		requestLogger(c, h.logger).Error("begin attempt failed",
			slog.String("slug", bank.Slug), slog.Any("error", err))
		Internal(c, "failed to begin attempt")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"attempt_id":     attempt.ID,
		"lock_policy":    attempt.Policy,
		"question_count": len(bank.Questions),
	})
}

type answerRequest struct {
	QuestionID  string `json:"question_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required"`
}

// Answer records a selection on a live attempt. Under the immediate lock
// policy the feedback comes back in the same response.
func (h *QuizHandler) Answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	attempt, ok := h.resolveAttempt(c)
	if !ok {
		return
	}

	feedback, err := attempt.Answer(req.QuestionID, *req.OptionIndex)
	if err != nil {
		h.writeAttemptError(c, err)
		return
	}

	resp := gin.H{"progress": attempt.Progress()}
	if feedback != nil {
		resp["feedback"] = feedback
	}
	c.JSON(http.StatusOK, resp)
}

// Progress reports the running score of a live attempt.
func (h *QuizHandler) Progress(c *gin.Context) {
	attempt, ok := h.resolveAttempt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": attempt.Progress()})
}

// Submit finalises an attempt and returns the full result with feedback.
func (h *QuizHandler) Submit(c *gin.Context) {
	attempt, ok := h.resolveAttempt(c)
	if !ok {
		return
	}

	result, err := attempt.Submit()
	if err != nil {
		h.writeAttemptError(c, err)
		return
	}

	h.attempts.Remove(attempt.ID)
	c.JSON(http.StatusOK, result)
}

func (h *QuizHandler) loadBank(c *gin.Context) (*assessment.Bank, bool) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		BadRequest(c, "bank slug is required")
		return nil, false
	}

	bank, err := h.fetchBank(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "question bank not found")
			return nil, false
		}
		requestLogger(c, h.logger).Error("load bank failed",
			slog.String("slug", slug), slog.Any("error", err))
		Internal(c, "failed to load question bank")
		return nil, false
	}
	return bank, true
}

func (h *QuizHandler) fetchBank(ctx context.Context, slug string) (*assessment.Bank, error) {
	var row database.QuestionBank
	if err := h.db.WithContext(ctx).Where("slug = ?", slug).First(&row).Error; err != nil {
		return nil, err
	}
	return bankFromRow(&row)
}

func (h *QuizHandler) resolveAttempt(c *gin.Context) (*assessment.Attempt, bool) {
	bank, ok := h.loadBank(c)
	if !ok {
		return nil, false
	}

	attemptID := strings.TrimSpace(c.Param("attemptID"))
	if attemptID == "" {
		BadRequest(c, "attempt id is required")
		return nil, false
	}

	attempt, err := h.attempts.Resolve(attemptID, bank)
	if err != nil {
		h.writeAttemptError(c, err)
		return nil, false
	}
	return attempt, true
}

func (h *QuizHandler) writeAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assessment.ErrStaleAttempt):
		Gone(c, "attempt expired or question set changed, start again")
	case errors.Is(err, assessment.ErrAttemptSubmitted):
		Conflict(c, "attempt already submitted")
	case errors.Is(err, assessment.ErrAnswerLocked):
		Conflict(c, "answer already locked for this question")
	case errors.Is(err, assessment.ErrUnknownQuestion):
		NotFound(c, "question not part of this attempt")
	case errors.Is(err, assessment.ErrOptionOutOfRange):
		BadRequest(c, "option index out of range")
	default:
		requestLogger(c, h.logger).Error("attempt operation failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}

func bankFromRow(row *database.QuestionBank) (*assessment.Bank, error) {
	var questions []assessment.Question
	if len(row.Questions) > 0 {
		if err := json.Unmarshal(row.Questions, &questions); err != nil {
			return nil, err
		}
	}
	return &assessment.Bank{
		Slug:          row.Slug,
		Title:         row.Title,
		PassThreshold: row.PassThreshold,
		Questions:     questions,
	}, nil
}
