package services

import (
	"math"
	"sort"

	"leaps-tracker/models"
)

// ApprovalRate is approved / (approved + rejected) * 100; pending submissions are ignored.
func ApprovalRate(approved, rejected int64) float64 {
	decided := approved + rejected
	if decided <= 0 {
		return 0
	}
	return float64(approved) / float64(decided) * 100
}

// ActivationRate is active / total * 100.
func ActivationRate(active, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(active) / float64(total) * 100
}

// CompletionRate is approved / total * 100 for a single stage.
func CompletionRate(approved, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(approved) / float64(total) * 100
}

// Round2 rounds half away from zero to two decimals. Call it when building responses only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percentile returns the nearest-rank value at p on an ascending sort:
// index = floor(p/100 * (n-1)). p10 is the bottom decile and the result never
// decreases as p grows. values is not modified.
func Percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []int64, p float64) int64 {
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	idx := int(math.Floor(p / 100 * float64(len(sorted)-1)))
	return sorted[idx]
}

// PointsSummary describes the per-user points distribution.
type PointsSummary struct {
	Users int     `json:"users"`
	Min   int64   `json:"min"`
	Max   int64   `json:"max"`
	Mean  float64 `json:"mean"`
	P10   int64   `json:"p10"`
	P25   int64   `json:"p25"`
	P50   int64   `json:"p50"`
	P75   int64   `json:"p75"`
	P90   int64   `json:"p90"`
}

// SummarizePoints sorts once and reads every percentile from the same slice.
func SummarizePoints(values []int64) PointsSummary {
	if len(values) == 0 {
		return PointsSummary{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	return PointsSummary{
		Users: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  Round2(float64(sum) / float64(len(sorted))),
		P10:   percentileSorted(sorted, 10),
		P25:   percentileSorted(sorted, 25),
		P50:   percentileSorted(sorted, 50),
		P75:   percentileSorted(sorted, 75),
		P90:   percentileSorted(sorted, 90),
	}
}

// Balance is the sum of a user's ledger deltas.
func Balance(entries []models.PointsLedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += int64(e.Delta)
	}
	return total
}
