package stats

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"bibliocli/pkg/contracts/domain"
)

// UserRegularity is one user's observed timing entropy next to the
// threshold derived from the permutation null for their visit count.
type UserRegularity struct {
	UserID    string  `json:"user_id"`
	Visits    int     `json:"visits"`
	Entropy   float64 `json:"entropy"`
	Threshold float64 `json:"threshold"`
	Regular   bool    `json:"regular"`
}

// RegularityResult summarizes the temporal-regularity analysis.
type RegularityResult struct {
	Users         []UserRegularity `json:"users"`
	EligibleUsers int              `json:"eligible_users"`
	RegularUsers  int              `json:"regular_users"`
	Permutations  int              `json:"permutations"`
	Percentile    float64          `json:"percentile"`
}

type timingPair struct {
	weekday time.Weekday
	hour    int
}

// TemporalRegularity measures how concentrated each user's visit
// timing is. For every user with at least the configured minimum
// number of visits it computes the Shannon entropy of their
// (weekday, hour) visit distribution, then builds a null by
// repeatedly shuffling the pooled pairs across users while keeping
// each user's visit count. A user whose observed entropy falls below
// the configured percentile of the null entropies for their visit
// count is flagged as unusually regular.
func (e *Estimator) TemporalRegularity(ctx context.Context, ds *domain.Dataset) (*RegularityResult, error) {
	// one timing pair per unique user session
	seen := make(map[domain.SessionKey]struct{})
	byUser := make(map[string][]timingPair)
	for i := range ds.Records {
		rec := &ds.Records[i]
		f := rec.Features
		if f == nil || f.SessionIndex < 1 {
			continue
		}
		key := domain.SessionKey{UserID: rec.UserID, Day: f.SessionDay}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		byUser[rec.UserID] = append(byUser[rec.UserID], timingPair{f.Weekday, f.Hour})
	}

	// eligible users and the pooled pair list, in deterministic order
	users := make([]string, 0, len(byUser))
	for u, pairs := range byUser {
		if len(pairs) >= e.cfg.MinUserVisits {
			users = append(users, u)
		}
	}
	sort.Strings(users)

	var pool []timingPair
	counts := make([]int, len(users))
	for i, u := range users {
		counts[i] = len(byUser[u])
		pool = append(pool, byUser[u]...)
	}

	result := &RegularityResult{
		EligibleUsers: len(users),
		Permutations:  e.cfg.Permutations,
		Percentile:    e.cfg.ExtremePercentile,
	}
	if len(users) == 0 {
		return result, nil
	}

	// null entropies keyed by visit count, pooled across permutations
	nullByCount := make(map[int][]float64)
	rng := rand.New(rand.NewSource(e.cfg.Seed))
	shuffled := make([]timingPair, len(pool))
	copy(shuffled, pool)
	for p := 0; p < e.cfg.Permutations; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		off := 0
		for _, n := range counts {
			nullByCount[n] = append(nullByCount[n], pairEntropy(shuffled[off:off+n]))
			off += n
		}
	}

	thresholds := make(map[int]float64, len(nullByCount))
	for n, ents := range nullByCount {
		thresholds[n] = percentile(ents, e.cfg.ExtremePercentile)
	}

	for i, u := range users {
		obs := pairEntropy(byUser[u])
		thr := thresholds[counts[i]]
		regular := obs < thr
		if regular {
			result.RegularUsers++
		}
		result.Users = append(result.Users, UserRegularity{
			UserID:    u,
			Visits:    counts[i],
			Entropy:   obs,
			Threshold: thr,
			Regular:   regular,
		})
	}

	e.logger.InfoContext(ctx, "temporal regularity estimated",
		slog.Int("eligible_users", result.EligibleUsers),
		slog.Int("regular_users", result.RegularUsers))

	return result, nil
}

// pairEntropy is the Shannon entropy, in bits, of the empirical
// distribution over distinct (weekday, hour) pairs.
func pairEntropy(pairs []timingPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	counts := make(map[timingPair]int)
	for _, p := range pairs {
		counts[p]++
	}
	total := float64(len(pairs))
	entropy := 0.0
	for _, n := range counts {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
