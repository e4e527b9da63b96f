package vacancy

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"elecmate/internal/database"
)

// Employment types offered by the UI. The column is free text but requests
// are constrained to this set.
const (
	TypeFullTime  = "Full-time"
	TypePartTime  = "Part-time"
	TypeContract  = "Contract"
	TypeTemporary = "Temporary"
)

// Salary periods.
const (
	PeriodHourly = "hourly"
	PeriodAnnual = "annual"
)

// EmploymentTypes lists the values accepted by the type facet.
func EmploymentTypes() []string {
	return []string{TypeFullTime, TypePartTime, TypeContract, TypeTemporary}
}

// ValidEmploymentType reports whether t is an accepted facet value.
func ValidEmploymentType(t string) bool {
	switch t {
	case TypeFullTime, TypePartTime, TypeContract, TypeTemporary:
		return true
	}
	return false
}

// Filters captures one listing query. Zero values mean "unconstrained";
// facets combine by AND.
type Filters struct {
	Search    string
	Type      string
	Location  string
	MinSalary *int64
}

// Normalize trims inputs and collapses the UI's "all" sentinel. A set but
// invalid employment type is rejected rather than silently matching nothing.
func (f Filters) Normalize() (Filters, error) {
	f.Search = strings.TrimSpace(f.Search)
	f.Location = strings.TrimSpace(f.Location)
	f.Type = strings.TrimSpace(f.Type)
	if strings.EqualFold(f.Type, "all") {
		f.Type = ""
	}
	if f.Type != "" && !ValidEmploymentType(f.Type) {
		return Filters{}, fmt.Errorf("unknown employment type %q", f.Type)
	}
	if f.MinSalary != nil && *f.MinSalary < 0 {
		return Filters{}, fmt.Errorf("minimum salary must not be negative")
	}
	return f, nil
}

// Scope applies the filters to a vacancy query. The query must have the
// employer joined via Joins("Employer") so search can reach the display
// name. Mirrors Matches exactly; keep the two in sync.
func (f Filters) Scope(db *gorm.DB) *gorm.DB {
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		db = db.Where(
			`LOWER(vacancies.title) LIKE ? OR LOWER("Employer".display_name) LIKE ?`,
			pattern, pattern,
		)
	}
	if f.Type != "" {
		db = db.Where("vacancies.employment_type = ?", f.Type)
	}
	if f.Location != "" {
		db = db.Where("LOWER(vacancies.location) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
	}
	if f.MinSalary != nil {
		// Annual threshold. Hourly-only postings are excluded on purpose:
		// there is no honest hours-per-year conversion to apply.
		db = db.Where(
			"vacancies.salary_period = ? AND COALESCE(vacancies.salary_max, vacancies.salary_min) >= ?",
			PeriodAnnual, *f.MinSalary,
		)
	}
	return db
}

// Matches is the pure form of Scope for a single vacancy. employerName is
// the denormalized display name searched alongside the title.
func (f Filters) Matches(v database.Vacancy, employerName string) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(v.Title), needle) &&
			!strings.Contains(strings.ToLower(employerName), needle) {
			return false
		}
	}
	if f.Type != "" && v.EmploymentType != f.Type {
		return false
	}
	if f.Location != "" &&
		!strings.Contains(strings.ToLower(v.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.MinSalary != nil && !f.MatchesSalary(v) {
		return false
	}
	return true
}

// MatchesSalary implements the minimum-salary policy: the vacancy's annual
// maximum, or minimum when no maximum is published, must meet the
// threshold. Postings with only hourly pay defined do not match an annual
// threshold.
func (f Filters) MatchesSalary(v database.Vacancy) bool {
	if f.MinSalary == nil {
		return true
	}
	if v.SalaryPeriod != PeriodAnnual {
		return false
	}
	bound := v.SalaryMax
	if bound == nil {
		bound = v.SalaryMin
	}
	return bound != nil && *bound >= *f.MinSalary
}

// IsZero reports whether every facet is unconstrained, i.e. the cleared
// state equals the initial unfiltered load.
func (f Filters) IsZero() bool {
	return f.Search == "" && f.Type == "" && f.Location == "" && f.MinSalary == nil
}
