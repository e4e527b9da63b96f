package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/elecid"
	"elecmate/internal/storage"
)

// ElecIDPrintData is the JSON the worker injects into the frontend print
// route before rendering the share card.
type ElecIDPrintData struct {
	ProfileID       uint     `json:"profile_id"`
	ElecIDCode      string   `json:"elec_id_code"`
	Name            string   `json:"name"`
	Tier            string   `json:"tier"`
	TierLabel       string   `json:"tier_label"`
	BadgeStyle      string   `json:"badge_style"`
	Bio             string   `json:"bio,omitempty"`
	Specialisations []string `json:"specialisations"`
	CardType        string   `json:"card_type,omitempty"`
	PhotoURL        string   `json:"photo_url,omitempty"`
	GeneratedAt     string   `json:"generated_at"`
}

// PrintHandler serves render payloads to the worker. Routes using it sit
// behind the internal-secret middleware and are never exposed publicly.
type PrintHandler struct {
	db      *gorm.DB
	storage *storage.Client
	logger  *slog.Logger
}

// NewPrintHandler constructs the internal print handler.
func NewPrintHandler(db *gorm.DB, storageClient *storage.Client, logger *slog.Logger) *PrintHandler {
	return &PrintHandler{db: db, storage: storageClient, logger: logger}
}

// GetElecIDPrintData returns everything the card layout needs for one
// profile. The photo comes as a short-lived presigned URL the headless
// browser can fetch directly.
func (h *PrintHandler) GetElecIDPrintData(c *gin.Context) {
	profileID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid profile id")
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("profile_id", uint64(profileID)))

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Joins("User").First(&profile, profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "profile not found")
			return
		}
		logger.Error("print data profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	tier, err := elecid.ParseTier(profile.Tier)
	if err != nil {
		logger.Error("profile carries invalid tier", slog.String("tier", profile.Tier))
		Internal(c, "profile data invalid")
		return
	}

	data := ElecIDPrintData{
		ProfileID:       profile.ID,
		ElecIDCode:      profile.ElecIDCode,
		Name:            profile.User.Username,
		Tier:            string(tier),
		TierLabel:       tier.DisplayName(),
		BadgeStyle:      tier.BadgeStyle(),
		Bio:             profile.Bio,
		Specialisations: stringListFromJSON(profile.Specialisations),
		CardType:        profile.CardType,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if h.storage != nil && profile.PhotoKey != "" {
		if url, err := h.storage.GeneratePresignedURL(ctx, profile.PhotoKey, time.Hour); err == nil {
			data.PhotoURL = url
		} else {
			logger.Warn("presign profile photo failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, data)
}
