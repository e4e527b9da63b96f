package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"elecmate/internal/api/middleware"
	"elecmate/internal/database"
	"elecmate/internal/genai"
	"elecmate/internal/notify"
	"elecmate/internal/tasks"
)

// applyLockTTL bounds how long a stuck submission can hold its slot.
const applyLockTTL = 30 * time.Second

// ApplicationHandler runs the apply-to-vacancy workflow and the cover
// letter generator.
type ApplicationHandler struct {
	db          *gorm.DB
	redis       redisSingleFlight
	asynqClient *asynq.Client
	notifier    notify.Notifier
	generator   genai.Generator
	genTimeout  time.Duration
	logger      *slog.Logger
}

// NewApplicationHandler constructs the application handler.
func NewApplicationHandler(db *gorm.DB, redisClient redis.UniversalClient, asynqClient *asynq.Client, notifier notify.Notifier, generator genai.Generator, genTimeout time.Duration, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		db:          db,
		redis:       redisClient,
		asynqClient: asynqClient,
		notifier:    notifier,
		generator:   generator,
		genTimeout:  genTimeout,
		logger:      logger,
	}
}

type applyRequest struct {
	CoverLetter  string `json:"cover_letter"`
	ShareProfile bool   `json:"share_profile"`
}

// Apply submits an application. Preconditions are checked in a fixed order
// before any write; exactly one insert can ever happen per (user, vacancy).
func (h *ApplicationHandler) Apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	vacancyID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid vacancy id")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("vacancy_id", uint64(vacancyID)),
	)

	// 1. The applicant needs an Elec-ID profile to share.
	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorCode(c, http.StatusPreconditionFailed, "elec_id_required", "an Elec-ID profile is required to apply")
			return
		}
		logger.Error("apply profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 2. Sharing the profile with the employer is part of applying.
	if !req.ShareProfile {
		ErrorCode(c, http.StatusPreconditionFailed, "consent_required", "profile sharing consent is required to apply")
		return
	}

	// 3. The vacancy must still accept applications.
	var row database.Vacancy
	if err := h.db.WithContext(ctx).First(&row, vacancyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "vacancy not found")
			return
		}
		logger.Error("apply vacancy lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if row.Status != database.VacancyStatusOpen ||
		(row.ClosingDate != nil && time.Now().After(*row.ClosingDate)) {
		ErrorCode(c, http.StatusGone, "vacancy_closed", "vacancy is no longer accepting applications")
		return
	}

	// 4. One application per profile per vacancy.
	var existing int64
	if err := h.db.WithContext(ctx).Model(&database.Application{}).
		Where("vacancy_id = ? AND profile_id = ?", vacancyID, profile.ID).
		Count(&existing).Error; err != nil {
		logger.Error("apply duplicate check failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if existing > 0 {
		ErrorCode(c, http.StatusConflict, "already_applied", "you have already applied to this vacancy")
		return
	}

	// 5. Single-flight guard against rapid duplicate submits.
	lockKey := fmt.Sprintf("apply:inflight:%d:%d", userID, vacancyID)
	acquired, err := h.redis.SetNX(ctx, lockKey, "1", applyLockTTL).Result()
	if err != nil {
		logger.Error("apply lock failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !acquired {
		ErrorCode(c, http.StatusConflict, "apply_in_progress", "an application for this vacancy is already being submitted")
		return
	}
	defer func() {
		_ = h.redis.Del(context.WithoutCancel(ctx), lockKey).Err()
	}()

	application := database.Application{
		VacancyID:   vacancyID,
		ProfileID:   profile.ID,
		CoverLetter: req.CoverLetter,
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&application).Error; err != nil {
			return err
		}
		return tx.Model(&database.Vacancy{}).
			Where("id = ?", vacancyID).
			UpdateColumn("applications_count", gorm.Expr("applications_count + 1")).Error
	})
	if err != nil {
		// The unique index backs the pre-check under concurrency.
		if isUniqueViolation(err) {
			ErrorCode(c, http.StatusConflict, "already_applied", "you have already applied to this vacancy")
			return
		}
		logger.Error("apply insert failed", slog.Any("error", err))
		h.notifyAsync(ctx, userID, notify.Notification{
			Title:       "Application failed",
			Description: "Your application could not be submitted. Please try again.",
			Severity:    notify.SeverityError,
		})
		Internal(c, "failed to submit application")
		return
	}

	if task, err := tasks.NewApplicationSubmittedTask(application.ID, middleware.GetCorrelationID(c)); err != nil {
		logger.Error("build application task failed", slog.Any("error", err))
	} else if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		logger.Error("enqueue application task failed", slog.Any("error", err))
	}

	h.notifyAsync(ctx, userID, notify.Notification{
		Title:       "Application submitted",
		Description: fmt.Sprintf("Your application for %q has been sent.", row.Title),
		Severity:    notify.SeveritySuccess,
	})

	logger.Info("application submitted", slog.Uint64("application_id", uint64(application.ID)))
	c.JSON(http.StatusCreated, gin.H{"id": application.ID})
}

type coverLetterResponse struct {
	CoverLetter string `json:"cover_letter"`
}

// GenerateCoverLetter drafts a cover letter for a vacancy from the
// caller's profile. Independent of submission: failures leave whatever the
// client already holds untouched.
func (h *ApplicationHandler) GenerateCoverLetter(c *gin.Context) {
	vacancyID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid vacancy id")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("vacancy_id", uint64(vacancyID)),
	)

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Joins("User").Where("elec_id_profiles.user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorCode(c, http.StatusPreconditionFailed, "elec_id_required", "an Elec-ID profile is required")
			return
		}
		logger.Error("cover letter profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var row database.Vacancy
	if err := h.db.WithContext(ctx).Joins("Employer").First(&row, vacancyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "vacancy not found")
			return
		}
		logger.Error("cover letter vacancy lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	genReq := genai.NewCoverLetterRequest(genai.CoverLetterInputs{
		VacancyTitle:    row.Title,
		EmployerName:    row.Employer.DisplayName,
		Location:        row.Location,
		Requirements:    stringListFromJSON(row.Requirements),
		ApplicantName:   profile.User.Username,
		Tier:            profile.Tier,
		Bio:             profile.Bio,
		Specialisations: stringListFromJSON(profile.Specialisations),
	})

	genCtx, cancel := context.WithTimeout(ctx, h.genTimeout)
	defer cancel()

	text, err := genai.GenerateCoverLetter(genCtx, h.generator, genReq)
	if err != nil {
		switch {
		case errors.Is(err, genai.ErrGenerationTimeout):
			logger.Info("cover letter generation timed out")
			Error(c, http.StatusGatewayTimeout, "cover letter generation timed out")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing to answer.
			c.Abort()
		default:
			logger.Error("cover letter generation failed", slog.Any("error", err))
			Error(c, http.StatusUnprocessableEntity, "cover letter generation failed")
		}
		return
	}

	c.JSON(http.StatusOK, coverLetterResponse{CoverLetter: strings.TrimSpace(text)})
}

// notifyAsync delivers a toast without letting a pub/sub hiccup change the
// request outcome.
func (h *ApplicationHandler) notifyAsync(ctx context.Context, userID uint, n notify.Notification) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(context.WithoutCancel(ctx), userID, n); err != nil {
		logger := h.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("notify failed", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
