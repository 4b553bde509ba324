package services

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"leaps-tracker/models"
)

func TestApprovalRate(t *testing.T) {
	tests := []struct {
		name               string
		approved, rejected int64
		want               float64
	}{
		{name: "no decisions", want: 0},
		{name: "all approved", approved: 4, want: 100},
		{name: "all rejected", rejected: 3, want: 0},
		{name: "mixed", approved: 3, rejected: 1, want: 75},
		{name: "thirds", approved: 1, rejected: 2, want: 100.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ApprovalRate(tt.approved, tt.rejected), 1e-9)
		})
	}
}

func TestApprovalRateMatchesFormula(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		a, rj := r.Int63n(1000), r.Int63n(1000)
		if a+rj == 0 {
			continue
		}
		assert.InDelta(t, float64(a)/float64(a+rj)*100, ApprovalRate(a, rj), 1e-9)
	}
}

func TestActivationRate(t *testing.T) {
	assert.Equal(t, 0.0, ActivationRate(0, 0))
	assert.Equal(t, 0.0, ActivationRate(5, 0))
	assert.Equal(t, 50.0, ActivationRate(5, 10))

	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		total := r.Int63n(1000) + 1
		active := r.Int63n(total + 1)
		assert.InDelta(t, float64(active)/float64(total)*100, ActivationRate(active, total), 1e-9)
	}
}

func TestCompletionRate(t *testing.T) {
	assert.Equal(t, 0.0, CompletionRate(0, 0))
	assert.Equal(t, 25.0, CompletionRate(1, 4))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, Round2(100.0/3))
	assert.Equal(t, 66.67, Round2(200.0/3))
	assert.Equal(t, 12.0, Round2(12))
}

func TestPercentileNearestRankAscending(t *testing.T) {
	values := []int64{90, 10, 50, 30, 70, 20, 80, 40, 60, 100}

	assert.Equal(t, int64(10), Percentile(values, 0))
	assert.Equal(t, int64(10), Percentile(values, 10)) // floor(0.1*9)=0
	assert.Equal(t, int64(30), Percentile(values, 25)) // floor(2.25)=2
	assert.Equal(t, int64(50), Percentile(values, 50)) // floor(4.5)=4
	assert.Equal(t, int64(90), Percentile(values, 90)) // floor(8.1)=8
	assert.Equal(t, int64(100), Percentile(values, 100))
	assert.Equal(t, int64(100), Percentile(values, 250))
	assert.Equal(t, int64(10), Percentile(values, -5))

	// input untouched
	assert.Equal(t, []int64{90, 10, 50, 30, 70, 20, 80, 40, 60, 100}, values)
}

func TestPercentileEmpty(t *testing.T) {
	assert.Equal(t, int64(0), Percentile(nil, 50))
}

func TestPercentileIdempotentAndMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	values := make([]int64, 137)
	for i := range values {
		values[i] = r.Int63n(5000) - 200
	}

	for p := 0.0; p <= 100; p += 2.5 {
		assert.Equal(t, Percentile(values, p), Percentile(values, p))
	}
	prev := Percentile(values, 0)
	for p := 1.0; p <= 100; p++ {
		cur := Percentile(values, p)
		assert.GreaterOrEqual(t, cur, prev, "p=%v", p)
		prev = cur
	}
}

func TestSummarizePoints(t *testing.T) {
	s := SummarizePoints([]int64{150, 90, 20, 0, 65})
	assert.Equal(t, 5, s.Users)
	assert.Equal(t, int64(0), s.Min)
	assert.Equal(t, int64(150), s.Max)
	assert.Equal(t, 65.0, s.Mean)
	assert.Equal(t, int64(65), s.P50)
	assert.Equal(t, Percentile([]int64{150, 90, 20, 0, 65}, 90), s.P90)

	assert.Equal(t, PointsSummary{}, SummarizePoints(nil))
}

func TestBalance(t *testing.T) {
	entries := []models.PointsLedgerEntry{
		{ActivityCode: models.ActivityLearn, Delta: 20},
		{ActivityCode: models.ActivityExplore, Delta: 50},
		{ActivityCode: models.ActivityLearn, Delta: -5},
	}
	assert.Equal(t, int64(65), Balance(entries))
	assert.Equal(t, int64(0), Balance(nil))
}
