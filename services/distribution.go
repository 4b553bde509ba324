package services

import (
	"fmt"
	"strings"

	"leaps-tracker/models"
)

// Distribution row categories produced by the grouped UNION query.
const (
	CategoryStatus           = "status"
	CategoryActivity         = "activity"
	CategoryRole             = "role"
	CategoryCohort           = "cohort"
	CategoryPointsByActivity = "points_by_activity"
)

// UnassignedCohort labels users without a cohort.
const UnassignedCohort = "Unassigned"

// DistributionRow is one grouped row: (category, key, count, summed points).
type DistributionRow struct {
	Category string
	Key      string
	Count    int64
	Points   int64
}

// RowOutcome is the per-row result of mapping. Rejected rows carry a reason.
type RowOutcome struct {
	Row      DistributionRow
	Accepted bool
	Reason   string
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type ActivityCount struct {
	Activity models.ActivityCode `json:"activity"`
	Count    int64               `json:"count"`
}

type ActivityPoints struct {
	Activity models.ActivityCode `json:"activity"`
	Entries  int64               `json:"entries"`
	Points   int64               `json:"points"`
}

// Distributions holds the typed buckets. Slices are never nil.
type Distributions struct {
	Status           []KeyCount       `json:"status"`
	Activity         []ActivityCount  `json:"activity"`
	Role             []KeyCount       `json:"role"`
	Cohort           []KeyCount       `json:"cohort"`
	PointsByActivity []ActivityPoints `json:"pointsByActivity"`
	SkippedRows      int              `json:"skippedRows"`
}

func emptyDistributions() Distributions {
	return Distributions{
		Status:           []KeyCount{},
		Activity:         []ActivityCount{},
		Role:             []KeyCount{},
		Cohort:           []KeyCount{},
		PointsByActivity: []ActivityPoints{},
	}
}

// ClassifyRow decides whether a row can be placed in a bucket.
func ClassifyRow(row DistributionRow) RowOutcome {
	reject := func(format string, args ...interface{}) RowOutcome {
		return RowOutcome{Row: row, Reason: fmt.Sprintf(format, args...)}
	}
	if row.Count < 0 {
		return reject("negative count %d", row.Count)
	}
	switch row.Category {
	case CategoryStatus:
		switch models.SubmissionStatus(row.Key) {
		case models.StatusPending, models.StatusApproved, models.StatusRejected:
		default:
			return reject("unknown submission status %q", row.Key)
		}
	case CategoryActivity, CategoryPointsByActivity:
		if _, ok := models.ParseActivityCode(row.Key); !ok || strings.ToUpper(row.Key) != row.Key {
			return reject("unknown activity code %q", row.Key)
		}
	case CategoryRole:
		if !models.Role(row.Key).Valid() {
			return reject("unknown role %q", row.Key)
		}
	case CategoryCohort:
	default:
		return reject("unknown category %q", row.Category)
	}
	return RowOutcome{Row: row, Accepted: true}
}

// MapDistributions partitions rows into buckets. Every input row either lands in
// exactly one bucket or is returned as rejected.
func MapDistributions(rows []DistributionRow) (Distributions, []RowOutcome) {
	d := emptyDistributions()
	var rejected []RowOutcome
	for _, row := range rows {
		out := ClassifyRow(row)
		if !out.Accepted {
			rejected = append(rejected, out)
			continue
		}
		switch row.Category {
		case CategoryStatus:
			d.Status = append(d.Status, KeyCount{Key: row.Key, Count: row.Count})
		case CategoryActivity:
			d.Activity = append(d.Activity, ActivityCount{Activity: models.ActivityCode(row.Key), Count: row.Count})
		case CategoryRole:
			d.Role = append(d.Role, KeyCount{Key: row.Key, Count: row.Count})
		case CategoryCohort:
			key := row.Key
			if strings.TrimSpace(key) == "" {
				key = UnassignedCohort
			}
			d.Cohort = append(d.Cohort, KeyCount{Key: key, Count: row.Count})
		case CategoryPointsByActivity:
			d.PointsByActivity = append(d.PointsByActivity, ActivityPoints{
				Activity: models.ActivityCode(row.Key),
				Entries:  row.Count,
				Points:   row.Points,
			})
		}
	}
	d.SkippedRows = len(rejected)
	return d, rejected
}

// Entries counts the typed entries across all buckets.
func (d Distributions) Entries() int {
	return len(d.Status) + len(d.Activity) + len(d.Role) + len(d.Cohort) + len(d.PointsByActivity)
}
