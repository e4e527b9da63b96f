package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"elecmate/internal/api/middleware"
	"elecmate/internal/database"
	"elecmate/internal/elecid"
	"elecmate/internal/storage"
	"elecmate/internal/tasks"
)

const profileURLDuration = time.Hour

// ElecIDHandler manages the electrician's credential profile and its
// shareable card.
type ElecIDHandler struct {
	db          *gorm.DB
	storage     *storage.Client
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewElecIDHandler constructs the Elec-ID handler.
func NewElecIDHandler(db *gorm.DB, storageClient *storage.Client, asynqClient *asynq.Client, logger *slog.Logger) *ElecIDHandler {
	return &ElecIDHandler{db: db, storage: storageClient, asynqClient: asynqClient, logger: logger}
}

type profileResponse struct {
	ElecIDCode      string   `json:"elec_id_code"`
	Tier            string   `json:"tier"`
	TierLabel       string   `json:"tier_label"`
	BadgeStyle      string   `json:"badge_style"`
	Bio             string   `json:"bio,omitempty"`
	Specialisations []string `json:"specialisations"`
	CardType        string   `json:"card_type,omitempty"`
	PhotoURL        string   `json:"photo_url,omitempty"`
	HasShareCard    bool     `json:"has_share_card"`
}

// GetProfile returns the caller's own profile. Absence is an explicit 404
// so the apply flow can map it to its precondition.
func (h *ElecIDHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "elec-id profile not found")
			return
		}
		logger.Error("get profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	resp, err := h.presentProfile(ctx, &profile)
	if err != nil {
		logger.Error("present profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, resp)
}

type upsertProfileRequest struct {
	Bio             string   `json:"bio"`
	Specialisations []string `json:"specialisations"`
	CardType        string   `json:"card_type"`
	Tier            string   `json:"tier"`
}

// UpsertProfile creates or updates the caller's profile. Tier changes are
// admin-only; everyone else keeps whatever tier the vetting process set.
func (h *ElecIDHandler) UpsertProfile(c *gin.Context) {
	var req upsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	role, _ := userRoleFromContext(c)

	var requestedTier elecid.VerificationTier
	if strings.TrimSpace(req.Tier) != "" {
		parsed, err := elecid.ParseTier(req.Tier)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		requestedTier = parsed
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var profile database.ElecIDProfile
	err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		tier := elecid.TierBasic
		if requestedTier != "" {
			if role != database.RoleAdmin && requestedTier != elecid.TierBasic {
				Forbidden(c, "tier changes are admin-only")
				return
			}
			tier = requestedTier
		}
		profile = database.ElecIDProfile{
			UserID:          userID,
			Tier:            string(tier),
			ElecIDCode:      newElecIDCode(),
			Bio:             strings.TrimSpace(req.Bio),
			Specialisations: jsonFromStringList(req.Specialisations),
			CardType:        strings.TrimSpace(req.CardType),
		}
		if err := h.db.WithContext(ctx).Create(&profile).Error; err != nil {
			logger.Error("create profile failed", slog.Any("error", err))
			Internal(c, "failed to save profile")
			return
		}
		logger.Info("profile created", slog.String("elec_id", profile.ElecIDCode))
	case err != nil:
		logger.Error("profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	default:
		if requestedTier != "" && string(requestedTier) != profile.Tier && role != database.RoleAdmin {
			Forbidden(c, "tier changes are admin-only")
			return
		}
		updates := map[string]any{
			"bio":             strings.TrimSpace(req.Bio),
			"specialisations": jsonFromStringList(req.Specialisations),
			"card_type":       strings.TrimSpace(req.CardType),
		}
		if requestedTier != "" && role == database.RoleAdmin {
			updates["tier"] = string(requestedTier)
		}
		if err := h.db.WithContext(ctx).Model(&profile).Updates(updates).Error; err != nil {
			logger.Error("update profile failed", slog.Any("error", err))
			Internal(c, "failed to save profile")
			return
		}
		if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
			logger.Error("reload profile failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}

	resp, err := h.presentProfile(ctx, &profile)
	if err != nil {
		logger.Error("present profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RequestShareCard queues rendering of the profile's share card PDF. The
// result arrives as a websocket notification with a download link.
func (h *ElecIDHandler) RequestShareCard(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "elec-id profile not found")
			return
		}
		logger.Error("share card profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	task, err := tasks.NewElecIDCardTask(profile.ID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("build share card task failed", slog.Any("error", err))
		Internal(c, "failed to queue share card")
		return
	}
	info, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5))
	if err != nil {
		logger.Error("enqueue share card task failed", slog.Any("error", err))
		Internal(c, "failed to queue share card")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "share card generation queued",
		"task_id": info.ID,
	})
}

// ShareCardLink presigns a download URL for the stored share card.
func (h *ElecIDHandler) ShareCardLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "elec-id profile not found")
			return
		}
		logger.Error("share card link profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if profile.ShareCardKey == "" {
		NotFound(c, "no share card generated yet")
		return
	}
	if h.storage == nil {
		Error(c, http.StatusServiceUnavailable, "file storage is unavailable")
		return
	}

	url, err := h.storage.GeneratePresignedURL(ctx, profile.ShareCardKey, profileURLDuration)
	if err != nil {
		logger.Error("presign share card failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(profileURLDuration.Seconds())})
}

func (h *ElecIDHandler) presentProfile(ctx context.Context, profile *database.ElecIDProfile) (*profileResponse, error) {
	tier, err := elecid.ParseTier(profile.Tier)
	if err != nil {
		return nil, err
	}

	resp := &profileResponse{
		ElecIDCode:      profile.ElecIDCode,
		Tier:            string(tier),
		TierLabel:       tier.DisplayName(),
		BadgeStyle:      tier.BadgeStyle(),
		Bio:             profile.Bio,
		Specialisations: stringListFromJSON(profile.Specialisations),
		CardType:        profile.CardType,
		HasShareCard:    profile.ShareCardKey != "",
	}
	if h.storage != nil && profile.PhotoKey != "" {
		if url, err := h.storage.GeneratePresignedURL(ctx, profile.PhotoKey, profileURLDuration); err == nil {
			resp.PhotoURL = url
		}
	}
	return resp, nil
}

// newElecIDCode mints the public code printed on cards. Uniqueness is
// enforced by the column index; collisions at this entropy are not a
// practical concern.
func newElecIDCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "EM-" + raw[:12]
}
