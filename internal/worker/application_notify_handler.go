package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/notify"
	"elecmate/internal/tasks"
)

// ApplicationNotifyHandler fans a stored application out to the employer
// as a notification. Kept off the request path so a slow pub/sub never
// delays the applicant's response.
type ApplicationNotifyHandler struct {
	db       *gorm.DB
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewApplicationNotifyHandler creates the task handler.
func NewApplicationNotifyHandler(db *gorm.DB, notifier notify.Notifier, logger *slog.Logger) *ApplicationNotifyHandler {
	return &ApplicationNotifyHandler{db: db, notifier: notifier, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *ApplicationNotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.ApplicationSubmittedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("application_id", int(payload.ApplicationID)),
	)

	var application database.Application
	if err := h.db.WithContext(ctx).
		Preload("Vacancy.Employer").
		First(&application, payload.ApplicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("application not found, skipping task")
			return nil
		}
		log.Error("query application failed", slog.Any("error", err))
		return err
	}

	employerUserID := application.Vacancy.Employer.UserID
	if employerUserID == 0 {
		log.Warn("application vacancy has no employer user, skipping task")
		return nil
	}

	n := notify.Notification{
		Title:       "New application",
		Description: fmt.Sprintf("A new application arrived for %q.", application.Vacancy.Title),
		Severity:    notify.SeverityInfo,
	}
	if err := h.notifier.Notify(ctx, employerUserID, n); err != nil {
		log.Error("notify employer failed", slog.Any("error", err))
		return err
	}

	log.Info("application notification delivered", slog.Uint64("employer_user_id", uint64(employerUserID)))
	return nil
}
