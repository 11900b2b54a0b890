package stats

import (
	"context"
	"log/slog"
	"sort"

	"bibliocli/pkg/contracts/domain"
)

// StickinessBaseline is the match-rate curve for one baseline window
// size k0: did a user's later sessions keep the dominant media type of
// their first k0 sessions?
type StickinessBaseline struct {
	FirstK            int          `json:"first_k"`
	Points            []CurvePoint `json:"points"`
	UsersWithBaseline int          `json:"users_with_baseline"`
	UsersTied         int          `json:"users_tied"`
}

// StickinessResult holds one baseline curve per configured window size
type StickinessResult struct {
	Baselines []StickinessBaseline `json:"baselines"`
}

// Stickiness estimates, for each configured first-k0 window, the
// probability that a later session's dominant media type matches the
// user's baseline type, by session index, with user-level bootstrap
// intervals. Users whose baseline window has no unique dominant type
// are excluded from that window's analysis; sessions without a unique
// dominant type are excluded from outcome evaluation.
func (e *Estimator) Stickiness(ctx context.Context, ds *domain.Dataset) (*StickinessResult, error) {
	maxIdx := e.cfg.MaxSessionIndex

	// dominant type per unique (user, session index), ties already
	// collapsed to "" by the feature builder
	type sessionType struct {
		userID   string
		index    int
		dominant string
	}
	seen := make(map[domain.SessionKey]struct{})
	var sessions []sessionType
	for i := range ds.Records {
		rec := &ds.Records[i]
		f := rec.Features
		if f == nil || f.SessionIndex < 1 || f.SessionIndex > maxIdx {
			continue
		}
		key := domain.SessionKey{UserID: rec.UserID, Day: f.SessionDay}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sessions = append(sessions, sessionType{rec.UserID, f.SessionIndex, f.DominantMediaType})
	}

	result := &StickinessResult{}
	for ki, k0 := range e.cfg.FirstKThresholds {
		baseline, tied := e.baselineTypes(ds, k0)

		// match outcomes for sessions past the baseline window
		mat := &userMatrix{cols: maxIdx}
		byUser := make(map[string][]float64)
		obs := make([]int, maxIdx)
		matches := make([]float64, maxIdx)
		for _, s := range sessions {
			base, ok := baseline[s.userID]
			if !ok || s.index <= k0 || s.dominant == "" {
				continue
			}
			row := byUser[s.userID]
			if row == nil {
				row = nanSlice(maxIdx)
				byUser[s.userID] = row
			}
			match := boolToFloat(s.dominant == base)
			row[s.index-1] = match
			obs[s.index-1]++
			matches[s.index-1] += match
		}

		users := make([]string, 0, len(byUser))
		for u := range byUser {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			mat.rows = append(mat.rows, byUser[u])
		}

		rates := nanSlice(maxIdx)
		for c := range rates {
			if obs[c] > 0 {
				rates[c] = matches[c] / float64(obs[c])
			}
		}
		smoothed := movingAverage(rates, e.cfg.SmoothingWindow)

		// distinct seed stream per baseline window
		seed := e.cfg.Seed + int64((ki+1)*1_000_003)
		lower, upper, err := bootstrapCI(ctx, mat, e.cfg.StickinessResamples, e.cfg.Alpha, seed, e.cfg.Workers)
		if err != nil {
			return nil, err
		}

		var points []CurvePoint
		for c := k0; c < maxIdx; c++ {
			if obs[c] < e.cfg.MinSessionObs {
				continue
			}
			points = append(points, CurvePoint{
				SessionIndex: c + 1,
				Rate:         rates[c],
				Smoothed:     smoothed[c],
				Lower:        lower[c],
				Upper:        upper[c],
				Observations: obs[c],
			})
		}

		e.logger.InfoContext(ctx, "stickiness baseline estimated",
			slog.Int("first_k", k0),
			slog.Int("users_with_baseline", len(baseline)),
			slog.Int("users_tied", tied))

		result.Baselines = append(result.Baselines, StickinessBaseline{
			FirstK:            k0,
			Points:            points,
			UsersWithBaseline: len(baseline),
			UsersTied:         tied,
		})
	}

	return result, nil
}

// baselineTypes determines each user's dominant media type across all
// loans of their first k0 sessions. Counting is loan-level: every loan
// in the window contributes. Users whose maximum count is tied between
// types get no baseline and are reported in the second return value.
func (e *Estimator) baselineTypes(ds *domain.Dataset, k0 int) (map[string]string, int) {
	counts := make(map[string]map[string]int)
	for i := range ds.Records {
		rec := &ds.Records[i]
		f := rec.Features
		if f == nil || f.SessionIndex < 1 || f.SessionIndex > k0 || rec.MediaType == "" {
			continue
		}
		if counts[rec.UserID] == nil {
			counts[rec.UserID] = make(map[string]int)
		}
		counts[rec.UserID][rec.MediaType]++
	}

	baseline := make(map[string]string, len(counts))
	tied := 0
	for userID, byType := range counts {
		maxN := 0
		for _, n := range byType {
			if n > maxN {
				maxN = n
			}
		}
		top := ""
		atMax := 0
		for mt, n := range byType {
			if n == maxN {
				atMax++
				top = mt
			}
		}
		if atMax == 1 {
			baseline[userID] = top
		} else {
			tied++
		}
	}
	return baseline, tied
}

// MediaTypeStats summarizes the media-type composition of sessions:
// loan-level type shares, the rate of sessions without a unique
// dominant type, the distribution of distinct types per session, and
// the baseline tie rate per configured window.
type MediaTypeStats struct {
	LoanShareByType map[string]float64 `json:"loan_share_by_type"`
	Sessions        int                `json:"sessions"`
	TieSessions     int                `json:"tie_sessions"`
	TieRate         float64            `json:"tie_rate"`
	// DistinctTypesPMF[k-1] is the share of sessions with exactly k
	// distinct media types, for k in 1..10; TailShare covers k > 10.
	DistinctTypesPMF []float64         `json:"distinct_types_pmf"`
	TailShare        float64           `json:"tail_share"`
	BaselineTieRates []BaselineTieRate `json:"baseline_tie_rates"`
}

// BaselineTieRate reports how many users lack a unique baseline type
// for one first-k0 window.
type BaselineTieRate struct {
	FirstK int     `json:"first_k"`
	Users  int     `json:"users"`
	Tied   int     `json:"tied"`
	Rate   float64 `json:"rate"`
}

const distinctTypesPMFMax = 10

// MediaTypeSessionStats computes the diagnostic statistics printed
// alongside the stickiness curves.
func (e *Estimator) MediaTypeSessionStats(ds *domain.Dataset) *MediaTypeStats {
	loanCounts := make(map[string]int)
	loanTotal := 0

	type sessInfo struct {
		byType map[string]int
	}
	sessions := make(map[domain.SessionKey]*sessInfo)

	for i := range ds.Records {
		rec := &ds.Records[i]
		if rec.Features == nil || rec.MediaType == "" {
			continue
		}
		loanCounts[rec.MediaType]++
		loanTotal++

		key := domain.SessionKey{UserID: rec.UserID, Day: rec.Features.SessionDay}
		si := sessions[key]
		if si == nil {
			si = &sessInfo{byType: make(map[string]int)}
			sessions[key] = si
		}
		si.byType[rec.MediaType]++
	}

	stats := &MediaTypeStats{
		LoanShareByType:  make(map[string]float64, len(loanCounts)),
		Sessions:         len(sessions),
		DistinctTypesPMF: make([]float64, distinctTypesPMFMax),
	}
	for mt, n := range loanCounts {
		stats.LoanShareByType[mt] = float64(n) / float64(loanTotal)
	}

	for _, si := range sessions {
		maxN := 0
		for _, n := range si.byType {
			if n > maxN {
				maxN = n
			}
		}
		atMax := 0
		for _, n := range si.byType {
			if n == maxN {
				atMax++
			}
		}
		if atMax > 1 {
			stats.TieSessions++
		}

		distinct := len(si.byType)
		if distinct <= distinctTypesPMFMax {
			stats.DistinctTypesPMF[distinct-1]++
		} else {
			stats.TailShare++
		}
	}

	if stats.Sessions > 0 {
		stats.TieRate = float64(stats.TieSessions) / float64(stats.Sessions)
		for k := range stats.DistinctTypesPMF {
			stats.DistinctTypesPMF[k] /= float64(stats.Sessions)
		}
		stats.TailShare /= float64(stats.Sessions)
	}

	for _, k0 := range e.cfg.FirstKThresholds {
		baseline, tied := e.baselineTypes(ds, k0)
		users := len(baseline) + tied
		rate := 0.0
		if users > 0 {
			rate = float64(tied) / float64(users)
		}
		stats.BaselineTieRates = append(stats.BaselineTieRates, BaselineTieRate{
			FirstK: k0,
			Users:  users,
			Tied:   tied,
			Rate:   rate,
		})
	}

	return stats
}
