package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/notify"
)

// ConversationHandler threads messages between electricians and employers.
type ConversationHandler struct {
	db       *gorm.DB
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewConversationHandler constructs the conversation handler.
func NewConversationHandler(db *gorm.DB, notifier notify.Notifier, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{db: db, notifier: notifier, logger: logger}
}

type sendMessageRequest struct {
	EmployerID uint   `json:"employer_id" binding:"required"`
	VacancyID  *uint  `json:"vacancy_id"`
	Content    string `json:"content"`
}

// SendMessage starts (or continues) a conversation with an employer. The
// conversation row and the message land in one transaction so a failed
// insert never leaves an empty thread behind.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	// Reject blank content before touching the database.
	content := strings.TrimSpace(req.Content)
	if content == "" {
		BadRequest(c, "message content must not be empty")
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
		slog.Uint64("employer_id", uint64(req.EmployerID)),
	)

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorCode(c, http.StatusPreconditionFailed, "elec_id_required", "an Elec-ID profile is required to message employers")
			return
		}
		logger.Error("message profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var employer database.Employer
	if err := h.db.WithContext(ctx).First(&employer, req.EmployerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "employer not found")
			return
		}
		logger.Error("message employer lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if req.VacancyID != nil {
		var count int64
		if err := h.db.WithContext(ctx).Model(&database.Vacancy{}).
			Where("id = ? AND employer_id = ?", *req.VacancyID, employer.ID).
			Count(&count).Error; err != nil {
			logger.Error("message vacancy lookup failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		if count == 0 {
			NotFound(c, "vacancy not found for this employer")
			return
		}
	}

	var conversation database.Conversation
	var message database.Message
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("employer_id = ? AND profile_id = ?", employer.ID, profile.ID)
		if req.VacancyID != nil {
			query = query.Where("vacancy_id = ?", *req.VacancyID)
		} else {
			query = query.Where("vacancy_id IS NULL")
		}
		if err := query.First(&conversation).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			conversation = database.Conversation{
				EmployerID: employer.ID,
				ProfileID:  profile.ID,
				VacancyID:  req.VacancyID,
			}
			if err := tx.Create(&conversation).Error; err != nil {
				return err
			}
		}

		message = database.Message{
			ConversationID: conversation.ID,
			SenderRole:     database.SenderRoleElectrician,
			SenderID:       userID,
			Content:        content,
			Type:           "text",
		}
		return tx.Create(&message).Error
	})
	if err != nil {
		logger.Error("send message failed", slog.Any("error", err))
		Internal(c, "failed to send message")
		return
	}

	h.notifyCounterparty(ctx, employer.UserID, "New message", "You have a new message from an electrician.")

	logger.Info("message sent", slog.Uint64("conversation_id", uint64(conversation.ID)))
	c.JSON(http.StatusCreated, gin.H{
		"conversation_id": conversation.ID,
		"message_id":      message.ID,
	})
}

type replyRequest struct {
	Content string `json:"content"`
}

// Reply appends an employer message to an existing conversation.
func (h *ConversationHandler) Reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		BadRequest(c, "message content must not be empty")
		return
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid conversation id")
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
		slog.Uint64("conversation_id", uint64(conversationID)),
	)

	var employer database.Employer
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&employer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Forbidden(c, "employer profile missing")
			return
		}
		logger.Error("reply employer lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var conversation database.Conversation
	if err := h.db.WithContext(ctx).Preload("Profile").First(&conversation, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "conversation not found")
			return
		}
		logger.Error("reply conversation lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if conversation.EmployerID != employer.ID {
		Forbidden(c, "not your conversation")
		return
	}

	message := database.Message{
		ConversationID: conversation.ID,
		SenderRole:     database.SenderRoleEmployer,
		SenderID:       userID,
		Content:        content,
		Type:           "text",
	}
	if err := h.db.WithContext(ctx).Create(&message).Error; err != nil {
		logger.Error("reply insert failed", slog.Any("error", err))
		Internal(c, "failed to send message")
		return
	}

	h.notifyCounterparty(ctx, conversation.Profile.UserID, "New message", "You have a new message from an employer.")

	c.JSON(http.StatusCreated, gin.H{"message_id": message.ID})
}

type conversationSummary struct {
	ID         uint      `json:"id"`
	EmployerID uint      `json:"employer_id"`
	ProfileID  uint      `json:"profile_id"`
	VacancyID  *uint     `json:"vacancy_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListConversations lists the caller's threads, most recent first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	role, _ := userRoleFromContext(c)

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	query := h.db.WithContext(ctx).Model(&database.Conversation{}).Order("updated_at DESC")
	switch role {
	case database.RoleEmployer:
		var employer database.Employer
		if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&employer).Error; err != nil {
			c.JSON(http.StatusOK, gin.H{"conversations": []conversationSummary{}})
			return
		}
		query = query.Where("employer_id = ?", employer.ID)
	default:
		var profile database.ElecIDProfile
		if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
			c.JSON(http.StatusOK, gin.H{"conversations": []conversationSummary{}})
			return
		}
		query = query.Where("profile_id = ?", profile.ID)
	}

	var rows []database.Conversation
	if err := query.Find(&rows).Error; err != nil {
		logger.Error("list conversations failed", slog.Any("error", err))
		Internal(c, "failed to list conversations")
		return
	}

	summaries := make([]conversationSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, conversationSummary{
			ID:         row.ID,
			EmployerID: row.EmployerID,
			ProfileID:  row.ProfileID,
			VacancyID:  row.VacancyID,
			UpdatedAt:  row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

type messageView struct {
	ID         uint      `json:"id"`
	SenderRole string    `json:"sender_role"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	SentAt     time.Time `json:"sent_at"`
}

// ListMessages returns a conversation's history, oldest first. Only the
// two participants may read it.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid conversation id")
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
		slog.Uint64("conversation_id", uint64(conversationID)),
	)

	var conversation database.Conversation
	if err := h.db.WithContext(ctx).Preload("Profile").Preload("Employer").First(&conversation, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "conversation not found")
			return
		}
		logger.Error("messages conversation lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if conversation.Profile.UserID != userID && conversation.Employer.UserID != userID {
		Forbidden(c, "not your conversation")
		return
	}

	var rows []database.Message
	if err := h.db.WithContext(ctx).
		Where("conversation_id = ?", conversation.ID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		logger.Error("list messages failed", slog.Any("error", err))
		Internal(c, "failed to list messages")
		return
	}

	views := make([]messageView, 0, len(rows))
	for _, row := range rows {
		views = append(views, messageView{
			ID:         row.ID,
			SenderRole: row.SenderRole,
			Content:    row.Content,
			Type:       row.Type,
			SentAt:     row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

func (h *ConversationHandler) notifyCounterparty(ctx context.Context, userID uint, title, description string) {
	if h.notifier == nil || userID == 0 {
		return
	}
	if err := h.notifier.Notify(context.WithoutCancel(ctx), userID, notify.Notification{
		Title:       title,
		Description: description,
		Severity:    notify.SeverityInfo,
	}); err != nil {
		logger := h.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("notify failed", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
	}
}
