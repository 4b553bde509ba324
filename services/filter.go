package services

import (
	"fmt"
	"strings"
	"time"
)

// AllCohorts disables the cohort filter.
const AllCohorts = "ALL"

// ReportQuery is the raw query string of every analytics report.
type ReportQuery struct {
	StartDate string `query:"startDate" validate:"omitempty,isodate"`
	EndDate   string `query:"endDate" validate:"omitempty,isodate"`
	Cohort    string `query:"cohort" validate:"omitempty,max=64"`
}

// ReportFilter is a validated report window. End is exclusive.
type ReportFilter struct {
	Start  *time.Time
	End    *time.Time
	Cohort string
}

// Filter validates q and converts it. A date-only end date covers that whole day.
func (q ReportQuery) Filter() (ReportFilter, error) {
	if err := ValidateStruct(q); err != nil {
		return ReportFilter{}, err
	}
	var f ReportFilter
	if q.StartDate != "" {
		start, _, _ := parseISODate(q.StartDate)
		start = start.UTC()
		f.Start = &start
	}
	if q.EndDate != "" {
		end, dateOnly, _ := parseISODate(q.EndDate)
		end = end.UTC()
		if dateOnly {
			end = end.Add(24 * time.Hour)
		}
		f.End = &end
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return ReportFilter{}, NewValidationError("invalid request parameters", map[string]string{
			"endDate": "endDate must not be before startDate",
		})
	}
	f.Cohort = normalizeCohort(q.Cohort)
	return f, nil
}

func normalizeCohort(c string) string {
	c = strings.TrimSpace(c)
	if strings.EqualFold(c, AllCohorts) {
		return ""
	}
	return c
}

// CacheKey identifies the filter in the report cache.
func (f ReportFilter) CacheKey() string {
	format := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	cohort := f.Cohort
	if cohort == "" {
		cohort = AllCohorts
	}
	return fmt.Sprintf("%s|%s|%s", format(f.Start), format(f.End), cohort)
}

// conditions appends the filter to b. Column names come from code, values go to args.
// An empty column skips that part of the filter.
func (f ReportFilter) conditions(b *queryBuilder, timeCol, cohortCol string) {
	if timeCol != "" && f.Start != nil {
		b.add(timeCol+" >= ?", *f.Start)
	}
	if timeCol != "" && f.End != nil {
		b.add(timeCol+" < ?", *f.End)
	}
	if cohortCol != "" && f.Cohort != "" {
		b.add(cohortCol+" = ?", f.Cohort)
	}
}

// queryBuilder collects WHERE conditions with positional args.
type queryBuilder struct {
	conds []string
	args  []interface{}
}

func (b *queryBuilder) add(cond string, args ...interface{}) *queryBuilder {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
	return b
}

// where renders "WHERE a AND b", or "" with no conditions.
func (b *queryBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conds, " AND ")
}

// and renders " AND a AND b" for appending to an existing WHERE.
func (b *queryBuilder) and() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " AND " + strings.Join(b.conds, " AND ")
}
