package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/errcode"
	"elecmate/internal/notify"
	"elecmate/internal/storage"
	"elecmate/internal/tasks"
)

const shareCardURLTTL = 7 * 24 * time.Hour

// CardTaskHandler consumes share-card render tasks: pull the print payload
// from the internal API, render the frontend card route headlessly, store
// the PDF, and push the download link to the user.
type CardTaskHandler struct {
	db                 *gorm.DB
	storage            *storage.Client
	redisClient        redis.UniversalClient
	logger             *slog.Logger
	internalSecret     string
	internalAPIBaseURL string
	frontendBaseURL    string
}

// NewCardTaskHandler creates the task handler.
func NewCardTaskHandler(
	db *gorm.DB,
	storageClient *storage.Client,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	internalSecret string,
	internalAPIBaseURL string,
	frontendBaseURL string,
) *CardTaskHandler {
	return &CardTaskHandler{
		db:                 db,
		storage:            storageClient,
		redisClient:        redisClient,
		logger:             logger,
		internalSecret:     internalSecret,
		internalAPIBaseURL: strings.TrimRight(strings.TrimSpace(internalAPIBaseURL), "/"),
		frontendBaseURL:    strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/"),
	}
}

// ProcessTask implements asynq.Handler.
func (h *CardTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.ElecIDCardPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("profile_id", int(payload.ProfileID)),
	)
	log.Info("Starting share-card generation task...")

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).First(&profile, payload.ProfileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("profile not found, skipping task")
			return nil
		}
		log.Error("query profile failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("user_id", uint64(profile.UserID)))

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		msg := CardGenerationNotifyMessage{
			Status:        "error",
			ProfileID:     profile.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishCardNotify(ctx, profile.UserID, msg); err != nil {
			log.Error("publish card error notification failed", slog.Any("error", err))
		}
	}()

	pdfBytes, err := h.generateCardFromFrontend(ctx, profile.ID, payload.CorrelationID)
	if err != nil {
		log.Error("generate card via frontend failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("elecid-cards/%d/%s.pdf", profile.UserID, uuid.NewString())
	pdfReader := bytes.NewReader(pdfBytes)
	if _, err := h.storage.UploadFile(ctx, objectName, pdfReader, int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload card pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).Model(&profile).
		Update("share_card_key", objectName).Error; err != nil {
		log.Error("update profile share card key failed", slog.Any("error", err))
		return err
	}

	downloadURL, err := h.storage.GeneratePresignedURL(ctx, objectName, shareCardURLTTL)
	if err != nil {
		log.Error("presign card pdf failed", slog.Any("error", err))
		return err
	}

	msg := CardGenerationNotifyMessage{
		Status:        "completed",
		ProfileID:     profile.ID,
		CorrelationID: payload.CorrelationID,
		DownloadURL:   downloadURL,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishCardNotify(ctx, profile.UserID, msg); err != nil {
		log.Error("publish card notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Share-card generation task completed successfully.")
	return nil
}

func (h *CardTaskHandler) publishCardNotify(ctx context.Context, userID uint, msg CardGenerationNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := notify.ChannelFor(userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func (h *CardTaskHandler) generateCardFromFrontend(ctx context.Context, profileID uint, correlationID string) (_ []byte, err error) {
	printData, err := fetchInternalPrintData(ctx, h.internalAPIBaseURL, elecIDPrintPath, profileID, h.internalSecret, correlationID)
	if err != nil {
		return nil, err
	}

	targetURL := fmt.Sprintf("%s/elec-id/print/%d", h.frontendBaseURL, profileID)

	injectionScript := buildPrintDataBootstrapScript(printData)
	page, cleanup, err := renderFrontendPage(h.logger, targetURL, injectionScript)
	if err != nil {
		cleanup()
		return nil, err
	}
	defer cleanup()

	return exportPDF(page)
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
