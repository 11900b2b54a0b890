// Package stats computes the point estimates and resampling-based
// uncertainty measures consumed by the chart frontend: learning curves
// over session indices, media-type stickiness, and temporal-visit
// regularity against a permutation null. Users, not loans, are the unit
// of independence: every interval here comes from resampling users with
// replacement. Randomness is always an explicitly seeded resource, so
// runs reproduce exactly regardless of worker scheduling.
package stats

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
)

// userMatrix holds one row per user and one column per session index;
// missing observations are NaN.
type userMatrix struct {
	rows [][]float64
	cols int
}

// bootstrapCI computes per-column empirical quantile bounds by
// resampling user rows with replacement. Each resample b draws from its
// own PRNG seeded with seed+b, so results are independent of worker
// interleaving. Fewer than two users yields NaN bounds throughout.
func bootstrapCI(ctx context.Context, mat *userMatrix, resamples int, alpha float64, seed int64, workers int) (lower, upper []float64, err error) {
	lower = nanSlice(mat.cols)
	upper = nanSlice(mat.cols)
	if len(mat.rows) < 2 {
		return lower, upper, nil
	}

	boot := make([][]float64, resamples)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < resamples; b++ {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			rng := rand.New(rand.NewSource(seed + int64(b)))
			boot[b] = resampleColumnMeans(mat, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	column := make([]float64, 0, resamples)
	for c := 0; c < mat.cols; c++ {
		column = column[:0]
		for b := 0; b < resamples; b++ {
			if v := boot[b][c]; !math.IsNaN(v) {
				column = append(column, v)
			}
		}
		lower[c] = quantile(column, alpha/2)
		upper[c] = quantile(column, 1-alpha/2)
	}
	return lower, upper, nil
}

// resampleColumnMeans draws len(rows) users with replacement and returns
// the NaN-aware column means of the resample.
func resampleColumnMeans(mat *userMatrix, rng *rand.Rand) []float64 {
	sums := make([]float64, mat.cols)
	counts := make([]int, mat.cols)

	n := len(mat.rows)
	for i := 0; i < n; i++ {
		row := mat.rows[rng.Intn(n)]
		for c, v := range row {
			if math.IsNaN(v) {
				continue
			}
			sums[c] += v
			counts[c]++
		}
	}

	means := make([]float64, mat.cols)
	for c := range means {
		if counts[c] == 0 {
			means[c] = math.NaN()
		} else {
			means[c] = sums[c] / float64(counts[c])
		}
	}
	return means
}

// quantile returns the linearly interpolated empirical quantile of vals
// (q in [0,1]). NaN when vals is empty. vals is not retained.
func quantile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// percentile is quantile with q given in percent
func percentile(vals []float64, p float64) float64 {
	return quantile(vals, p/100.0)
}

// movingAverage smooths vals with a centered window, ignoring NaN
// neighbors; a position with no valid neighbor stays NaN.
func movingAverage(vals []float64, window int) []float64 {
	if window <= 1 {
		return append([]float64(nil), vals...)
	}
	half := (window - 1) / 2
	out := make([]float64, len(vals))
	for i := range vals {
		sum := 0.0
		count := 0
		for j := i - half; j <= i+half+(window-1)%2; j++ {
			if j < 0 || j >= len(vals) || math.IsNaN(vals[j]) {
				continue
			}
			sum += vals[j]
			count++
		}
		if count == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// nanSlice returns a slice of n NaNs
func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
