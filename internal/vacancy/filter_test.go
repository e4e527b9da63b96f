package vacancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"elecmate/internal/database"
)

func int64Ptr(v int64) *int64 { return &v }

func TestNormalize(t *testing.T) {
	f, err := Filters{Search: "  solar  ", Type: "all", Location: " Leeds "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "solar", f.Search)
	assert.Equal(t, "", f.Type, `"all" collapses to unconstrained`)
	assert.Equal(t, "Leeds", f.Location)

	// Normalize is idempotent.
	again, err := f.Normalize()
	require.NoError(t, err)
	assert.Equal(t, f, again)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	_, err := Filters{Type: "Gig"}.Normalize()
	assert.Error(t, err)

	_, err = Filters{MinSalary: int64Ptr(-1)}.Normalize()
	assert.Error(t, err)
}

func TestValidEmploymentType(t *testing.T) {
	for _, et := range EmploymentTypes() {
		assert.True(t, ValidEmploymentType(et), et)
	}
	assert.False(t, ValidEmploymentType("full-time"), "facet values are case sensitive")
	assert.False(t, ValidEmploymentType(""))
}

func TestIsZero(t *testing.T) {
	assert.True(t, Filters{}.IsZero())

	cleared, err := Filters{Search: "  ", Type: "all"}.Normalize()
	require.NoError(t, err)
	assert.True(t, cleared.IsZero(), "cleared facets equal the unfiltered state")

	assert.False(t, Filters{MinSalary: int64Ptr(0)}.IsZero())
}

func TestMatchesCombinesByAND(t *testing.T) {
	v := database.Vacancy{
		Title:          "Approved Electrician - Solar Installs",
		Location:       "Leeds, West Yorkshire",
		EmploymentType: TypeFullTime,
		SalaryMin:      int64Ptr(38000),
		SalaryPeriod:   PeriodAnnual,
	}

	assert.True(t, Filters{}.Matches(v, "Voltbright Ltd"))
	assert.True(t, Filters{Search: "solar"}.Matches(v, "Voltbright Ltd"))
	assert.True(t, Filters{Search: "voltbright"}.Matches(v, "Voltbright Ltd"),
		"search also covers the employer name")
	assert.True(t, Filters{
		Search:    "solar",
		Type:      TypeFullTime,
		Location:  "leeds",
		MinSalary: int64Ptr(35000),
	}.Matches(v, "Voltbright Ltd"))

	// One failing facet fails the whole filter.
	assert.False(t, Filters{Search: "solar", Type: TypeContract}.Matches(v, "Voltbright Ltd"))
	assert.False(t, Filters{Search: "gasfitting"}.Matches(v, "Voltbright Ltd"))
	assert.False(t, Filters{Location: "Bristol"}.Matches(v, "Voltbright Ltd"))
}

func TestMatchesSalary(t *testing.T) {
	min := int64Ptr(35000)

	cases := []struct {
		name string
		v    database.Vacancy
		want bool
	}{
		{
			name: "max meets threshold",
			v:    database.Vacancy{SalaryMin: int64Ptr(30000), SalaryMax: int64Ptr(45000), SalaryPeriod: PeriodAnnual},
			want: true,
		},
		{
			name: "max below threshold",
			v:    database.Vacancy{SalaryMin: int64Ptr(20000), SalaryMax: int64Ptr(30000), SalaryPeriod: PeriodAnnual},
			want: false,
		},
		{
			name: "min used when no max",
			v:    database.Vacancy{SalaryMin: int64Ptr(36000), SalaryPeriod: PeriodAnnual},
			want: true,
		},
		{
			name: "exact threshold matches",
			v:    database.Vacancy{SalaryMin: int64Ptr(35000), SalaryPeriod: PeriodAnnual},
			want: true,
		},
		{
			name: "hourly-only posting never matches an annual threshold",
			v:    database.Vacancy{SalaryMin: int64Ptr(25), SalaryMax: int64Ptr(30), SalaryPeriod: PeriodHourly},
			want: false,
		},
		{
			name: "no salary published",
			v:    database.Vacancy{},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filters{MinSalary: min}.MatchesSalary(tc.v)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.True(t, Filters{}.MatchesSalary(database.Vacancy{}), "no threshold matches everything")
}

// TestScopeAgreesWithMatches runs the SQL scope against a seeded database and
// checks it returns exactly the rows the pure predicate accepts.
func TestScopeAgreesWithMatches(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.User{}, &database.Employer{}, &database.Vacancy{}))

	employer := database.Employer{DisplayName: "Voltbright Ltd", Location: "Leeds"}
	require.NoError(t, db.Create(&employer).Error)

	rows := []database.Vacancy{
		{
			EmployerID:     employer.ID,
			Title:          "Approved Electrician - Solar Installs",
			Location:       "Leeds",
			EmploymentType: TypeFullTime,
			SalaryMin:      int64Ptr(30000),
			SalaryMax:      int64Ptr(45000),
			SalaryPeriod:   PeriodAnnual,
			Status:         database.VacancyStatusOpen,
		},
		{
			EmployerID:     employer.ID,
			Title:          "Maintenance Electrician",
			Location:       "Bristol",
			EmploymentType: TypeContract,
			SalaryMin:      int64Ptr(25),
			SalaryMax:      int64Ptr(30),
			SalaryPeriod:   PeriodHourly,
			Status:         database.VacancyStatusOpen,
		},
		{
			EmployerID:     employer.ID,
			Title:          "Domestic Installer",
			Location:       "Leeds",
			EmploymentType: TypePartTime,
			SalaryMin:      int64Ptr(28000),
			SalaryPeriod:   PeriodAnnual,
			Status:         database.VacancyStatusOpen,
		},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	filterSets := []Filters{
		{},
		{Search: "solar"},
		{Search: "voltbright"},
		{Type: TypeContract},
		{Location: "leeds"},
		{MinSalary: int64Ptr(35000)},
		{Search: "electrician", Location: "Leeds", MinSalary: int64Ptr(29000)},
	}

	for _, f := range filterSets {
		f, err := f.Normalize()
		require.NoError(t, err)

		var got []database.Vacancy
		err = f.Scope(db.Model(&database.Vacancy{}).Joins("Employer")).Find(&got).Error
		require.NoError(t, err)

		wantIDs := map[uint]bool{}
		for _, v := range rows {
			if f.Matches(v, employer.DisplayName) {
				wantIDs[v.ID] = true
			}
		}

		gotIDs := map[uint]bool{}
		for _, v := range got {
			gotIDs[v.ID] = true
		}
		assert.Equal(t, wantIDs, gotIDs, "filters %+v", f)
	}
}
