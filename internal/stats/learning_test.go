package stats

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliocli/internal/config"
	"bibliocli/pkg/contracts/domain"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		MaxSessionIndex:     5,
		SmoothingWindow:     1,
		BootstrapResamples:  200,
		StickinessResamples: 100,
		Alpha:               0.05,
		FirstKThresholds:    []int{2},
		MinUserVisits:       3,
		Permutations:        100,
		ExtremePercentile:   1,
		Seed:                42,
		Workers:             2,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sessionRecord builds one loan row carrying session features. Multiple
// rows of the same user and day model a multi-loan session.
func sessionRecord(userID string, d time.Time, index int, late, ext bool) domain.LoanRecord {
	return domain.LoanRecord{
		UserID: userID,
		Features: &domain.LoanFeatures{
			SessionDay:           d,
			SessionIndex:         index,
			SessionLateFlag:      late,
			SessionExtensionFlag: ext,
		},
	}
}

func TestLearningCurve(t *testing.T) {
	est := New(testAnalysisConfig(), nil)
	ctx := context.Background()

	ds := &domain.Dataset{Records: []domain.LoanRecord{
		// user a: first session late, second not
		sessionRecord("a", day(2023, 1, 2), 1, true, false),
		sessionRecord("a", day(2023, 1, 9), 2, false, true),
		// user b: never late, extends on the first session
		sessionRecord("b", day(2023, 1, 3), 1, false, true),
		sessionRecord("b", day(2023, 1, 10), 2, false, false),
		// a second loan within b's first session must not double count
		sessionRecord("b", day(2023, 1, 3), 1, false, true),
	}}

	result, err := est.LearningCurve(ctx, ds)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Users)
	require.Len(t, result.Late, 5)

	assert.Equal(t, 1, result.Late[0].SessionIndex)
	assert.InDelta(t, 0.5, result.Late[0].Rate, 1e-9)
	assert.Equal(t, 2, result.Late[0].Observations)
	assert.InDelta(t, 0.0, result.Late[1].Rate, 1e-9)

	assert.InDelta(t, 0.5, result.Extension[0].Rate, 1e-9)
	assert.InDelta(t, 0.5, result.Extension[1].Rate, 1e-9)

	// indices nobody reached stay NaN with zero observations
	assert.True(t, math.IsNaN(result.Late[4].Rate))
	assert.Equal(t, 0, result.Late[4].Observations)
	assert.True(t, math.IsNaN(result.Late[4].Lower))
}

func TestLearningCurveIgnoresAnonymousAndOutOfRange(t *testing.T) {
	est := New(testAnalysisConfig(), nil)

	anonymous := domain.LoanRecord{UserID: ""}
	beyond := sessionRecord("a", day(2023, 3, 1), 6, true, false)
	kept := sessionRecord("a", day(2023, 1, 2), 1, true, false)

	result, err := est.LearningCurve(context.Background(), &domain.Dataset{
		Records: []domain.LoanRecord{anonymous, beyond, kept},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Users)
	assert.Equal(t, 1, result.Late[0].Observations)
	for i := 1; i < len(result.Late); i++ {
		assert.Equal(t, 0, result.Late[i].Observations)
	}
}

func TestLearningCurveDeterministic(t *testing.T) {
	est := New(testAnalysisConfig(), nil)
	ctx := context.Background()

	var records []domain.LoanRecord
	base := day(2023, 1, 2)
	for u := 0; u < 10; u++ {
		id := string(rune('a' + u))
		for s := 1; s <= 4; s++ {
			records = append(records, sessionRecord(id, base.AddDate(0, 0, u*30+s), s, (u+s)%2 == 0, u%3 == 0))
		}
	}
	ds := &domain.Dataset{Records: records}

	r1, err := est.LearningCurve(ctx, ds)
	require.NoError(t, err)
	r2, err := est.LearningCurve(ctx, ds)
	require.NoError(t, err)

	// index 5 is unreached and carries NaN, so compare the observed span
	for i := 0; i < 4; i++ {
		assert.Equal(t, r1.Late[i], r2.Late[i])
		assert.Equal(t, r1.Extension[i], r2.Extension[i])
	}
}
