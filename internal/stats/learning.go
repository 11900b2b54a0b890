package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"

	"bibliocli/internal/config"
	"bibliocli/pkg/contracts/domain"
)

// Estimator computes the statistical summaries with the configured
// parameters and an explicit seed.
type Estimator struct {
	cfg    config.AnalysisConfig
	logger *slog.Logger
}

// New creates an estimator
func New(cfg config.AnalysisConfig, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{cfg: cfg, logger: logger}
}

// CurvePoint is one session index of an estimated curve. Rate and the
// interval bounds are NaN where the data is insufficient.
type CurvePoint struct {
	SessionIndex int     `json:"session_index"`
	Rate         float64 `json:"rate"`
	Smoothed     float64 `json:"smoothed"`
	Lower        float64 `json:"lower"`
	Upper        float64 `json:"upper"`
	Observations int     `json:"observations"`
}

// MarshalJSON renders NaN estimates as null, which encoding/json
// cannot do for float64 on its own.
func (p CurvePoint) MarshalJSON() ([]byte, error) {
	type jsonPoint struct {
		SessionIndex int      `json:"session_index"`
		Rate         *float64 `json:"rate"`
		Smoothed     *float64 `json:"smoothed"`
		Lower        *float64 `json:"lower"`
		Upper        *float64 `json:"upper"`
		Observations int      `json:"observations"`
	}
	nullable := func(v float64) *float64 {
		if math.IsNaN(v) {
			return nil
		}
		return &v
	}
	return json.Marshal(jsonPoint{
		SessionIndex: p.SessionIndex,
		Rate:         nullable(p.Rate),
		Smoothed:     nullable(p.Smoothed),
		Lower:        nullable(p.Lower),
		Upper:        nullable(p.Upper),
		Observations: p.Observations,
	})
}

// LearningCurveResult holds the late-return and extension learning
// curves with their bootstrap intervals.
type LearningCurveResult struct {
	Late      []CurvePoint `json:"late"`
	Extension []CurvePoint `json:"extension"`
	Users     int          `json:"users"`
}

// sessionOutcome is one unique (user, session index) observation
type sessionOutcome struct {
	userID string
	index  int
	late   bool
	ext    bool
}

// uniqueSessions deduplicates loan rows into (user, session index)
// observations within [1, maxIndex]. Session flags are constant within a
// session, so the first row wins.
func uniqueSessions(ds *domain.Dataset, maxIndex int) []sessionOutcome {
	seen := make(map[domain.SessionKey]struct{})
	var out []sessionOutcome
	for i := range ds.Records {
		rec := &ds.Records[i]
		f := rec.Features
		if f == nil || f.SessionIndex < 1 || f.SessionIndex > maxIndex {
			continue
		}
		key := domain.SessionKey{UserID: rec.UserID, Day: f.SessionDay}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sessionOutcome{
			userID: rec.UserID,
			index:  f.SessionIndex,
			late:   f.SessionLateFlag,
			ext:    f.SessionExtensionFlag,
		})
	}
	return out
}

// LearningCurve estimates the per-session-index probability of a late
// session and of an extended session, smoothed with a centered moving
// average, with user-level block bootstrap confidence intervals.
func (e *Estimator) LearningCurve(ctx context.Context, ds *domain.Dataset) (*LearningCurveResult, error) {
	maxIdx := e.cfg.MaxSessionIndex
	sessions := uniqueSessions(ds, maxIdx)

	lateMat, users := outcomeMatrix(sessions, maxIdx, func(s sessionOutcome) float64 { return boolToFloat(s.late) })
	extMat, _ := outcomeMatrix(sessions, maxIdx, func(s sessionOutcome) float64 { return boolToFloat(s.ext) })

	e.logger.InfoContext(ctx, "estimating learning curve",
		slog.Int("sessions", len(sessions)),
		slog.Int("users", len(users)),
		slog.Int("resamples", e.cfg.BootstrapResamples))

	latePoints, err := e.curveWithCI(ctx, lateMat, e.cfg.BootstrapResamples, e.cfg.Seed)
	if err != nil {
		return nil, err
	}
	// offset the seed so the two curves resample independently
	extPoints, err := e.curveWithCI(ctx, extMat, e.cfg.BootstrapResamples, e.cfg.Seed+int64(e.cfg.BootstrapResamples))
	if err != nil {
		return nil, err
	}

	return &LearningCurveResult{Late: latePoints, Extension: extPoints, Users: len(users)}, nil
}

// curveWithCI turns a user×index outcome matrix into curve points:
// per-index mean, centered moving average, and bootstrap bounds.
func (e *Estimator) curveWithCI(ctx context.Context, mat *userMatrix, resamples int, seed int64) ([]CurvePoint, error) {
	rates := nanSlice(mat.cols)
	obs := make([]int, mat.cols)
	for c := 0; c < mat.cols; c++ {
		sum := 0.0
		n := 0
		for _, row := range mat.rows {
			if v := row[c]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		obs[c] = n
		if n > 0 {
			rates[c] = sum / float64(n)
		}
	}

	smoothed := movingAverage(rates, e.cfg.SmoothingWindow)
	lower, upper, err := bootstrapCI(ctx, mat, resamples, e.cfg.Alpha, seed, e.cfg.Workers)
	if err != nil {
		return nil, err
	}

	points := make([]CurvePoint, mat.cols)
	for c := range points {
		points[c] = CurvePoint{
			SessionIndex: c + 1,
			Rate:         rates[c],
			Smoothed:     smoothed[c],
			Lower:        lower[c],
			Upper:        upper[c],
			Observations: obs[c],
		}
	}
	return points, nil
}

// outcomeMatrix builds the user×sessionIndex matrix of an outcome over
// unique sessions, with NaN for indices a user never reached. Returns
// the matrix and the sorted user ids backing its rows.
func outcomeMatrix(sessions []sessionOutcome, maxIndex int, outcome func(sessionOutcome) float64) (*userMatrix, []string) {
	byUser := make(map[string][]float64)
	for _, s := range sessions {
		row := byUser[s.userID]
		if row == nil {
			row = nanSlice(maxIndex)
			byUser[s.userID] = row
		}
		row[s.index-1] = outcome(s)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	mat := &userMatrix{cols: maxIndex}
	for _, u := range users {
		mat.rows = append(mat.rows, byUser[u])
	}
	return mat, users
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
