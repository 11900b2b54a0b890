package stats

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantile(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		q    float64
		want float64
	}{
		{"median of odd count", []float64{3, 1, 2}, 0.5, 2},
		{"median interpolates", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"lower quantile", []float64{0, 10}, 0.025, 0.25},
		{"upper quantile", []float64{0, 10}, 0.975, 9.75},
		{"single value", []float64{7}, 0.5, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, quantile(tt.vals, tt.q), 1e-9)
		})
	}
}

func TestMovingAverage(t *testing.T) {
	t.Run("centered window", func(t *testing.T) {
		got := movingAverage([]float64{1, 2, 3, 4, 5}, 3)
		want := []float64{1.5, 2, 3, 4, 4.5}
		require.Len(t, got, len(want))
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
		}
	})

	t.Run("skips NaN neighbors", func(t *testing.T) {
		got := movingAverage([]float64{1, math.NaN(), 3}, 3)
		assert.InDelta(t, 1.0, got[0], 1e-9)
		assert.InDelta(t, 2.0, got[1], 1e-9)
		assert.InDelta(t, 3.0, got[2], 1e-9)
	})

	t.Run("all NaN stays NaN", func(t *testing.T) {
		got := movingAverage([]float64{math.NaN(), math.NaN()}, 3)
		assert.True(t, math.IsNaN(got[0]))
		assert.True(t, math.IsNaN(got[1]))
	})

	t.Run("window one is identity", func(t *testing.T) {
		got := movingAverage([]float64{1, 2, 3}, 1)
		assert.Equal(t, []float64{1, 2, 3}, got)
	})
}

func TestBootstrapCI(t *testing.T) {
	ctx := context.Background()

	t.Run("constant outcomes give zero width", func(t *testing.T) {
		mat := &userMatrix{cols: 2}
		for i := 0; i < 5; i++ {
			mat.rows = append(mat.rows, []float64{1, 0})
		}

		lower, upper, err := bootstrapCI(ctx, mat, 200, 0.05, 42, 2)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, lower[0], 1e-9)
		assert.InDelta(t, 1.0, upper[0], 1e-9)
		assert.InDelta(t, 0.0, lower[1], 1e-9)
		assert.InDelta(t, 0.0, upper[1], 1e-9)
	})

	t.Run("fewer than two users yields NaN bounds", func(t *testing.T) {
		mat := &userMatrix{cols: 1, rows: [][]float64{{1}}}

		lower, upper, err := bootstrapCI(ctx, mat, 100, 0.05, 42, 2)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(lower[0]))
		assert.True(t, math.IsNaN(upper[0]))
	})

	t.Run("deterministic for a fixed seed", func(t *testing.T) {
		mat := &userMatrix{cols: 3}
		for i := 0; i < 20; i++ {
			row := []float64{float64(i % 2), float64(i % 3), math.NaN()}
			if i%4 == 0 {
				row[2] = 1
			}
			mat.rows = append(mat.rows, row)
		}

		l1, u1, err := bootstrapCI(ctx, mat, 300, 0.05, 42, 4)
		require.NoError(t, err)
		l2, u2, err := bootstrapCI(ctx, mat, 300, 0.05, 42, 1)
		require.NoError(t, err)
		assert.Equal(t, l1, l2)
		assert.Equal(t, u1, u2)
	})

	t.Run("bounds bracket the mean", func(t *testing.T) {
		mat := &userMatrix{cols: 1}
		for i := 0; i < 40; i++ {
			mat.rows = append(mat.rows, []float64{float64(i % 2)})
		}

		lower, upper, err := bootstrapCI(ctx, mat, 500, 0.05, 7, 2)
		require.NoError(t, err)
		assert.Less(t, lower[0], 0.5)
		assert.Greater(t, upper[0], 0.5)
		assert.GreaterOrEqual(t, lower[0], 0.0)
		assert.LessOrEqual(t, upper[0], 1.0)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		mat := &userMatrix{cols: 1, rows: [][]float64{{1}, {0}}}
		_, _, err := bootstrapCI(cancelled, mat, 10000, 0.05, 42, 2)
		assert.Error(t, err)
	})
}
