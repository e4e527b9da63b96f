package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account roles. Employer accounts own vacancies; electrician accounts own
// Elec-ID profiles and applications.
const (
	RoleElectrician = "electrician"
	RoleEmployer    = "employer"
	RoleAdmin       = "admin"
)

// Vacancy status values.
const (
	VacancyStatusOpen   = "open"
	VacancyStatusClosed = "closed"
)

// Message sender roles.
const (
	SenderRoleElectrician = "electrician"
	SenderRoleEmployer    = "employer"
)

// User represents an account on the platform.
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	Role               string `gorm:"size:16;default:electrician"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Employer is the public-facing identity attached to an employer account.
// DisplayName and LogoKey are denormalized into vacancy listings.
type Employer struct {
	gorm.Model
	UserID      uint   `gorm:"uniqueIndex"`
	User        User   `gorm:"constraint:OnDelete:CASCADE"`
	DisplayName string `gorm:"size:128"`
	LogoKey     string `gorm:"size:512"`
	Location    string `gorm:"size:128"`
}

// ElecIDProfile is an electrician's shareable credential profile.
// Tier is stored as text but validated against the closed set in
// internal/elecid before any write.
type ElecIDProfile struct {
	gorm.Model
	UserID          uint           `gorm:"uniqueIndex"`
	User            User           `gorm:"constraint:OnDelete:CASCADE"`
	Tier            string         `gorm:"size:16;default:basic"`
	ElecIDCode      string         `gorm:"uniqueIndex;size:32"`
	Bio             string         `gorm:"size:2048"`
	Specialisations datatypes.JSON `gorm:"type:jsonb"`
	CardType        string         `gorm:"size:64"`
	PhotoKey        string         `gorm:"size:512"`
	ShareCardKey    string         `gorm:"size:512"`
}

// Vacancy is an employer-posted job listing.
// SalaryMin/SalaryMax are nullable; SalaryPeriod is empty when no salary is
// published. ApplicationsCount is maintained in the same transaction as the
// application insert.
type Vacancy struct {
	gorm.Model
	EmployerID        uint     `gorm:"index"`
	Employer          Employer `gorm:"constraint:OnDelete:CASCADE"`
	Title             string   `gorm:"size:255"`
	Description       string   `gorm:"type:text"`
	Location          string   `gorm:"size:128"`
	EmploymentType    string   `gorm:"size:32"`
	SalaryMin         *int64
	SalaryMax         *int64
	SalaryPeriod      string         `gorm:"size:16"`
	Requirements      datatypes.JSON `gorm:"type:jsonb"`
	Benefits          datatypes.JSON `gorm:"type:jsonb"`
	Status            string         `gorm:"size:16;default:open;index"`
	Views             int64          `gorm:"default:0"`
	ClosingDate       *time.Time
	ApplicationsCount int64 `gorm:"default:0"`
}

// Application records a single submission against a vacancy. The unique
// index backs the one-application-per-profile rule.
type Application struct {
	gorm.Model
	VacancyID   uint          `gorm:"uniqueIndex:idx_vacancy_profile"`
	Vacancy     Vacancy       `gorm:"constraint:OnDelete:CASCADE"`
	ProfileID   uint          `gorm:"uniqueIndex:idx_vacancy_profile"`
	Profile     ElecIDProfile `gorm:"constraint:OnDelete:CASCADE"`
	CoverLetter string        `gorm:"type:text"`
}

// Conversation threads messages between one employer and one Elec-ID
// profile, optionally scoped to a vacancy. Created lazily on first message.
type Conversation struct {
	gorm.Model
	EmployerID uint          `gorm:"index:idx_conversation_key"`
	Employer   Employer      `gorm:"constraint:OnDelete:CASCADE"`
	ProfileID  uint          `gorm:"index:idx_conversation_key"`
	Profile    ElecIDProfile `gorm:"constraint:OnDelete:CASCADE"`
	VacancyID  *uint         `gorm:"index:idx_conversation_key"`
}

// Message is one entry in a conversation. Messages are appended, never
// edited or deleted.
type Message struct {
	gorm.Model
	ConversationID uint         `gorm:"index"`
	Conversation   Conversation `gorm:"constraint:OnDelete:CASCADE"`
	SenderRole     string       `gorm:"size:16"`
	SenderID       uint
	Content        string `gorm:"type:text"`
	Type           string `gorm:"size:16;default:text"`
}

// QuestionBank stores an externally authored quiz as a JSONB question list.
// Banks are read-only at runtime; the admin CLI imports them.
type QuestionBank struct {
	gorm.Model
	Slug          string         `gorm:"uniqueIndex;size:128"`
	Title         string         `gorm:"size:255"`
	PassThreshold float64        `gorm:"default:0.7"`
	Questions     datatypes.JSON `gorm:"type:jsonb"`
}

// AllModels lists every model for migration, dependency order first.
func AllModels() []any {
	return []any{
		&User{},
		&Employer{},
		&ElecIDProfile{},
		&Vacancy{},
		&Application{},
		&Conversation{},
		&Message{},
		&QuestionBank{},
	}
}
