package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"elecmate/internal/database"
	"elecmate/internal/storage"
	"elecmate/internal/vacancy"
)

const logoURLDuration = time.Hour

// VacancyHandler serves the public vacancy board and the employer-side
// posting endpoints.
type VacancyHandler struct {
	db      *gorm.DB
	storage *storage.Client
	logger  *slog.Logger
}

// NewVacancyHandler constructs the vacancy handler.
func NewVacancyHandler(db *gorm.DB, storageClient *storage.Client, logger *slog.Logger) *VacancyHandler {
	return &VacancyHandler{db: db, storage: storageClient, logger: logger}
}

type employerSummary struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Location    string `json:"location,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

type vacancySummary struct {
	ID                uint            `json:"id"`
	Title             string          `json:"title"`
	Employer          employerSummary `json:"employer"`
	Location          string          `json:"location"`
	EmploymentType    string          `json:"employment_type"`
	SalaryMin         *int64          `json:"salary_min,omitempty"`
	SalaryMax         *int64          `json:"salary_max,omitempty"`
	SalaryPeriod      string          `json:"salary_period,omitempty"`
	Status            string          `json:"status"`
	PostedAt          time.Time       `json:"posted_at"`
	ClosingDate       *time.Time      `json:"closing_date,omitempty"`
	ApplicationsCount int64           `json:"applications_count"`
	HasApplied        bool            `json:"has_applied"`
}

type vacancyDetail struct {
	vacancySummary
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	Benefits     []string `json:"benefits"`
	Views        int64    `json:"views"`
}

// ListVacancies returns open vacancies matching the query facets. All
// facets combine by AND; absent facets are unconstrained.
func (h *VacancyHandler) ListVacancies(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger)

	filters, err := h.filtersFromQuery(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	query := h.db.WithContext(ctx).
		Model(&database.Vacancy{}).
		Joins("Employer").
		Where("vacancies.status = ?", database.VacancyStatusOpen).
		Order("vacancies.created_at DESC")
	query = filters.Scope(query)

	var rows []database.Vacancy
	if err := query.Find(&rows).Error; err != nil {
		logger.Error("list vacancies failed", slog.Any("error", err))
		Internal(c, "failed to list vacancies")
		return
	}

	applied := h.appliedSet(ctx, c, rows)

	summaries := make([]vacancySummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, h.summarize(ctx, row, applied[row.ID]))
	}
	c.JSON(http.StatusOK, gin.H{"vacancies": summaries})
}

// GetVacancy returns one vacancy in full and counts the view.
func (h *VacancyHandler) GetVacancy(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger)

	vacancyID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid vacancy id")
		return
	}

	var row database.Vacancy
	if err := h.db.WithContext(ctx).Joins("Employer").First(&row, vacancyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "vacancy not found")
			return
		}
		logger.Error("get vacancy failed", slog.Any("error", err))
		Internal(c, "failed to load vacancy")
		return
	}

	// Count the view without racing concurrent readers.
	if err := h.db.WithContext(ctx).Model(&database.Vacancy{}).
		Where("id = ?", row.ID).
		UpdateColumn("views", gorm.Expr("views + 1")).Error; err != nil {
		logger.Error("increment views failed", slog.Uint64("vacancy_id", uint64(row.ID)), slog.Any("error", err))
	} else {
		row.Views++
	}

	applied := h.appliedSet(ctx, c, []database.Vacancy{row})

	detail := vacancyDetail{
		vacancySummary: h.summarize(ctx, row, applied[row.ID]),
		Description:    row.Description,
		Requirements:   stringListFromJSON(row.Requirements),
		Benefits:       stringListFromJSON(row.Benefits),
		Views:          row.Views,
	}
	c.JSON(http.StatusOK, detail)
}

type createVacancyRequest struct {
	Title          string     `json:"title" binding:"required,max=255"`
	Description    string     `json:"description" binding:"required"`
	Location       string     `json:"location" binding:"required,max=128"`
	EmploymentType string     `json:"employment_type" binding:"required"`
	SalaryMin      *int64     `json:"salary_min"`
	SalaryMax      *int64     `json:"salary_max"`
	SalaryPeriod   string     `json:"salary_period"`
	Requirements   []string   `json:"requirements"`
	Benefits       []string   `json:"benefits"`
	ClosingDate    *time.Time `json:"closing_date"`
}

// CreateVacancy posts a new open vacancy for the calling employer.
func (h *VacancyHandler) CreateVacancy(c *gin.Context) {
	var req createVacancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if !vacancy.ValidEmploymentType(req.EmploymentType) {
		BadRequest(c, "unknown employment type")
		return
	}
	if err := validateSalary(req.SalaryMin, req.SalaryMax, req.SalaryPeriod); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	employer, err := h.employerForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Forbidden(c, "employer profile missing")
			return
		}
		logger.Error("employer lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	row := database.Vacancy{
		EmployerID:     employer.ID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Location:       strings.TrimSpace(req.Location),
		EmploymentType: req.EmploymentType,
		SalaryMin:      req.SalaryMin,
		SalaryMax:      req.SalaryMax,
		SalaryPeriod:   strings.ToLower(strings.TrimSpace(req.SalaryPeriod)),
		Requirements:   jsonFromStringList(req.Requirements),
		Benefits:       jsonFromStringList(req.Benefits),
		Status:         database.VacancyStatusOpen,
		ClosingDate:    req.ClosingDate,
	}
	if err := h.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Error("create vacancy failed", slog.Any("error", err))
		Internal(c, "failed to create vacancy")
		return
	}

	logger.Info("vacancy created", slog.Uint64("vacancy_id", uint64(row.ID)))
	c.JSON(http.StatusCreated, gin.H{"id": row.ID})
}

// CloseVacancy marks the caller's vacancy as closed. Idempotent.
func (h *VacancyHandler) CloseVacancy(c *gin.Context) {
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

	employer, err := h.employerForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Forbidden(c, "employer profile missing")
			return
		}
		logger.Error("employer lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var row database.Vacancy
	if err := h.db.WithContext(ctx).First(&row, vacancyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "vacancy not found")
			return
		}
		logger.Error("close vacancy lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if row.EmployerID != employer.ID {
		Forbidden(c, "not your vacancy")
		return
	}

	if row.Status != database.VacancyStatusClosed {
		if err := h.db.WithContext(ctx).Model(&row).
			Update("status", database.VacancyStatusClosed).Error; err != nil {
			logger.Error("close vacancy failed", slog.Any("error", err))
			Internal(c, "failed to close vacancy")
			return
		}
	}

	logger.Info("vacancy closed")
	c.Status(http.StatusOK)
}

func (h *VacancyHandler) filtersFromQuery(c *gin.Context) (vacancy.Filters, error) {
	filters := vacancy.Filters{
		Search:   c.Query("search"),
		Type:     c.Query("type"),
		Location: c.Query("location"),
	}
	if raw := strings.TrimSpace(c.Query("min_salary")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return vacancy.Filters{}, errors.New("min_salary must be an integer")
		}
		filters.MinSalary = &value
	}
	return filters.Normalize()
}

// appliedSet returns the vacancy IDs the calling electrician has already
// applied to, out of the given rows. Empty for anonymous callers, employer
// accounts and electricians without a profile.
func (h *VacancyHandler) appliedSet(ctx context.Context, c *gin.Context, rows []database.Vacancy) map[uint]bool {
	applied := make(map[uint]bool)

	userID, ok := userIDFromContext(c)
	if !ok || len(rows) == 0 {
		return applied
	}
	if role, ok := userRoleFromContext(c); !ok || role != database.RoleElectrician {
		return applied
	}

	var profile database.ElecIDProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return applied
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var vacancyIDs []uint
	if err := h.db.WithContext(ctx).Model(&database.Application{}).
		Where("profile_id = ? AND vacancy_id IN ?", profile.ID, ids).
		Pluck("vacancy_id", &vacancyIDs).Error; err != nil {
		requestLogger(c, h.logger).Error("applied lookup failed", slog.Any("error", err))
		return applied
	}
	for _, id := range vacancyIDs {
		applied[id] = true
	}
	return applied
}

func (h *VacancyHandler) summarize(ctx context.Context, row database.Vacancy, hasApplied bool) vacancySummary {
	summary := vacancySummary{
		ID:    row.ID,
		Title: row.Title,
		Employer: employerSummary{
			ID:          row.Employer.ID,
			DisplayName: row.Employer.DisplayName,
			Location:    row.Employer.Location,
		},
		Location:          row.Location,
		EmploymentType:    row.EmploymentType,
		SalaryMin:         row.SalaryMin,
		SalaryMax:         row.SalaryMax,
		SalaryPeriod:      row.SalaryPeriod,
		Status:            row.Status,
		PostedAt:          row.CreatedAt,
		ClosingDate:       row.ClosingDate,
		ApplicationsCount: row.ApplicationsCount,
		HasApplied:        hasApplied,
	}
	if h.storage != nil && row.Employer.LogoKey != "" {
		if url, err := h.storage.GeneratePresignedURL(ctx, row.Employer.LogoKey, logoURLDuration); err == nil {
			summary.Employer.LogoURL = url
		}
	}
	return summary
}

func (h *VacancyHandler) employerForUser(ctx context.Context, userID uint) (*database.Employer, error) {
	var employer database.Employer
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&employer).Error; err != nil {
		return nil, err
	}
	return &employer, nil
}

func validateSalary(min, max *int64, period string) error {
	period = strings.ToLower(strings.TrimSpace(period))
	switch period {
	case "", vacancy.PeriodHourly, vacancy.PeriodAnnual:
	default:
		return errors.New("salary_period must be hourly or annual")
	}
	if (min != nil || max != nil) && period == "" {
		return errors.New("salary_period is required when a salary is given")
	}
	if min != nil && *min < 0 {
		return errors.New("salary_min must not be negative")
	}
	if max != nil && *max < 0 {
		return errors.New("salary_max must not be negative")
	}
	if min != nil && max != nil && *max < *min {
		return errors.New("salary_max must not be below salary_min")
	}
	return nil
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(value), nil
}

func stringListFromJSON(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return []string{}
	}
	return list
}

func jsonFromStringList(list []string) datatypes.JSON {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
