package stats

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliocli/pkg/contracts/domain"
)

// visitRecord builds one loan row carrying visit-timing features.
func visitRecord(userID string, d time.Time, index int, weekday time.Weekday, hour int) domain.LoanRecord {
	return domain.LoanRecord{
		UserID: userID,
		Features: &domain.LoanFeatures{
			SessionDay:   d,
			SessionIndex: index,
			Weekday:      weekday,
			Hour:         hour,
		},
	}
}

func TestPairEntropy(t *testing.T) {
	t.Run("single slot has zero entropy", func(t *testing.T) {
		pairs := []timingPair{
			{time.Tuesday, 10},
			{time.Tuesday, 10},
			{time.Tuesday, 10},
		}
		assert.InDelta(t, 0.0, pairEntropy(pairs), 1e-9)
	})

	t.Run("uniform over four slots is two bits", func(t *testing.T) {
		pairs := []timingPair{
			{time.Tuesday, 10},
			{time.Wednesday, 11},
			{time.Thursday, 14},
			{time.Friday, 16},
		}
		assert.InDelta(t, 2.0, pairEntropy(pairs), 1e-9)
	})

	t.Run("empty is zero", func(t *testing.T) {
		assert.Zero(t, pairEntropy(nil))
	})
}

func TestTemporalRegularity(t *testing.T) {
	est := New(testAnalysisConfig(), nil)
	ctx := context.Background()

	// regular always visits Tuesday 10:00; the others spread their
	// visits over distinct weekday and hour slots
	var records []domain.LoanRecord
	base := day(2023, 1, 3)
	for i := 0; i < 6; i++ {
		records = append(records, visitRecord("regular", base.AddDate(0, 0, 7*i), i+1, time.Tuesday, 10))
	}
	weekdays := []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Tuesday}
	for u := 0; u < 4; u++ {
		id := string(rune('a' + u))
		for i := 0; i < 6; i++ {
			records = append(records, visitRecord(id, base.AddDate(0, 0, 7*i+u+1), i+1, weekdays[i], 8+(u+i)%10))
		}
	}

	result, err := est.TemporalRegularity(ctx, &domain.Dataset{Records: records})
	require.NoError(t, err)

	assert.Equal(t, 5, result.EligibleUsers)
	require.Len(t, result.Users, 5)

	byID := make(map[string]UserRegularity)
	for _, u := range result.Users {
		byID[u.UserID] = u
	}

	reg := byID["regular"]
	assert.Equal(t, 6, reg.Visits)
	assert.InDelta(t, 0.0, reg.Entropy, 1e-9)
	assert.True(t, reg.Regular, "constant timing should fall below the null")

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Greater(t, byID[id].Entropy, 1.0, "user %s", id)
	}
}

func TestTemporalRegularityVisitThreshold(t *testing.T) {
	est := New(testAnalysisConfig(), nil)

	// two visits is under the configured minimum of three
	records := []domain.LoanRecord{
		visitRecord("few", day(2023, 1, 3), 1, time.Tuesday, 10),
		visitRecord("few", day(2023, 1, 10), 2, time.Tuesday, 10),
	}

	result, err := est.TemporalRegularity(context.Background(), &domain.Dataset{Records: records})
	require.NoError(t, err)

	assert.Zero(t, result.EligibleUsers)
	assert.Empty(t, result.Users)
}

func TestTemporalRegularityCountsSessionsNotLoans(t *testing.T) {
	est := New(testAnalysisConfig(), nil)

	// three loans on a single day are one visit
	d := day(2023, 1, 3)
	records := []domain.LoanRecord{
		visitRecord("u", d, 1, time.Tuesday, 10),
		visitRecord("u", d, 1, time.Tuesday, 10),
		visitRecord("u", d, 1, time.Tuesday, 10),
	}

	result, err := est.TemporalRegularity(context.Background(), &domain.Dataset{Records: records})
	require.NoError(t, err)

	assert.Zero(t, result.EligibleUsers)
}

func TestTemporalRegularityDeterministic(t *testing.T) {
	est := New(testAnalysisConfig(), nil)
	ctx := context.Background()

	var records []domain.LoanRecord
	base := day(2023, 1, 3)
	for u := 0; u < 6; u++ {
		id := string(rune('a' + u))
		for i := 0; i < 5; i++ {
			records = append(records, visitRecord(id, base.AddDate(0, 0, 7*i+u), i+1, time.Weekday((2+u+i)%7), 8+(u*i)%10))
		}
	}
	ds := &domain.Dataset{Records: records}

	r1, err := est.TemporalRegularity(ctx, ds)
	require.NoError(t, err)
	r2, err := est.TemporalRegularity(ctx, ds)
	require.NoError(t, err)

	require.Equal(t, len(r1.Users), len(r2.Users))
	for i := range r1.Users {
		assert.Equal(t, r1.Users[i], r2.Users[i])
	}
	assert.False(t, math.IsNaN(r1.Users[0].Threshold))
}
