// Package features derives the per-user behavioral features from the
// cleaned borrowings dataset: calendar-day sessions with chronological
// indices, session-level aggregates, experience staging, and visit-timing
// regularity. Feature derivation is pure: it never removes rows, and
// loans without a tracked user keep null features.
package features

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"bibliocli/internal/config"
	"bibliocli/pkg/contracts/domain"
)

// Builder derives features using the configured thresholds
type Builder struct {
	cfg    config.FeaturesConfig
	logger *slog.Logger
}

// New creates a feature builder
func New(cfg config.FeaturesConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// sessionAgg accumulates per-(user, day) session aggregates
type sessionAgg struct {
	size       int
	late       bool
	extended   bool
	mediaCount map[string]int
}

// userAgg accumulates per-user timing statistics
type userAgg struct {
	weekdayCount map[time.Weekday]int
	hourCount    map[int]int
	sumHour      float64
	sumHourSq    float64
	visits       int
}

// AddFeatures returns a copy of the dataset with derived features set on
// every loan that has a tracked user, plus the per-user timing profiles.
// The input dataset is not mutated.
func (b *Builder) AddFeatures(ds *domain.Dataset) (*domain.Dataset, []domain.UserTimingProfile) {
	records := append([]domain.LoanRecord(nil), ds.Records...)

	sessions := make(map[domain.SessionKey]*sessionAgg)
	userDays := make(map[string]map[time.Time]struct{})
	users := make(map[string]*userAgg)

	// first pass: collect session and user aggregates
	for i := range records {
		rec := &records[i]
		if !rec.HasUser() || !rec.IssueTime.Valid {
			continue
		}

		day := domain.Day(rec.IssueTime.Time)
		key := domain.SessionKey{UserID: rec.UserID, Day: day}

		agg := sessions[key]
		if agg == nil {
			agg = &sessionAgg{mediaCount: make(map[string]int)}
			sessions[key] = agg
		}
		agg.size++
		if rec.Late {
			agg.late = true
		}
		if rec.Extensions.Valid && rec.Extensions.Float64 > 0 {
			agg.extended = true
		}
		if rec.MediaType != "" {
			agg.mediaCount[rec.MediaType]++
		}

		if userDays[rec.UserID] == nil {
			userDays[rec.UserID] = make(map[time.Time]struct{})
		}
		userDays[rec.UserID][day] = struct{}{}

		ua := users[rec.UserID]
		if ua == nil {
			ua = &userAgg{
				weekdayCount: make(map[time.Weekday]int),
				hourCount:    make(map[int]int),
			}
			users[rec.UserID] = ua
		}
		issue := rec.IssueTime.Time
		precise := preciseHour(issue)
		ua.weekdayCount[issue.Weekday()]++
		ua.hourCount[issue.Hour()]++
		ua.sumHour += precise
		ua.sumHourSq += precise * precise
		ua.visits++
	}

	// session indices: distinct calendar days per user, sorted ascending,
	// numbered from 1 (chronological factorization, not row order)
	sessionIndex := make(map[domain.SessionKey]int, len(sessions))
	for userID, days := range userDays {
		sorted := make([]time.Time, 0, len(days))
		for d := range days {
			sorted = append(sorted, d)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		for i, d := range sorted {
			sessionIndex[domain.SessionKey{UserID: userID, Day: d}] = i + 1
		}
	}

	profiles := buildProfiles(users)
	profileByUser := make(map[string]domain.UserTimingProfile, len(profiles))
	for _, p := range profiles {
		profileByUser[p.UserID] = p
	}

	// second pass: broadcast aggregates back to loan rows
	for i := range records {
		rec := &records[i]
		if !rec.HasUser() || !rec.IssueTime.Valid {
			continue
		}

		issue := rec.IssueTime.Time
		day := domain.Day(issue)
		key := domain.SessionKey{UserID: rec.UserID, Day: day}
		agg := sessions[key]
		idx := sessionIndex[key]
		profile := profileByUser[rec.UserID]

		stage := domain.StageExperienced
		if idx <= b.cfg.ExperienceCutoff {
			stage = domain.StageEarly
		}

		rec.Features = &domain.LoanFeatures{
			LateFlag:             rec.Late,
			SessionDay:           day,
			SessionIndex:         idx,
			SessionSize:          agg.size,
			SessionLateFlag:      agg.late,
			SessionExtensionFlag: agg.extended,
			DominantMediaType:    dominantType(agg.mediaCount),
			ExperienceStage:      stage,
			Weekday:              issue.Weekday(),
			Hour:                 issue.Hour(),
			PreciseHour:          preciseHour(issue),
			ModalWeekday:         profile.ModalWeekday,
			ModalHour:            profile.ModalHour,
			UserMeanPreciseHour:  profile.MeanPreciseHour,
			UserStdPreciseHour:   profile.StdPreciseHour,
			MatchesTypicalTime:   issue.Weekday() == profile.ModalWeekday && issue.Hour() == profile.ModalHour,
		}
	}

	b.logger.Info("features derived",
		slog.Int("rows", len(records)),
		slog.Int("tracked_users", len(users)),
		slog.Int("sessions", len(sessions)))

	return &domain.Dataset{Records: records, Columns: ds.Columns}, profiles
}

// buildProfiles finalizes the per-user timing profiles, sorted by user id
func buildProfiles(users map[string]*userAgg) []domain.UserTimingProfile {
	profiles := make([]domain.UserTimingProfile, 0, len(users))
	for userID, ua := range users {
		mean := ua.sumHour / float64(ua.visits)
		std := 0.0
		if ua.visits > 1 {
			// sample variance; a single visit has no spread
			variance := (ua.sumHourSq - float64(ua.visits)*mean*mean) / float64(ua.visits-1)
			if variance > 0 {
				std = math.Sqrt(variance)
			}
		}
		profiles = append(profiles, domain.UserTimingProfile{
			UserID:          userID,
			ModalWeekday:    modalWeekday(ua.weekdayCount),
			ModalHour:       modalHour(ua.hourCount),
			MeanPreciseHour: mean,
			StdPreciseHour:  std,
			Visits:          ua.visits,
		})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].UserID < profiles[j].UserID })
	return profiles
}

// modalWeekday returns the most frequent weekday; ties resolve to the
// smallest weekday value, so the result is deterministic.
func modalWeekday(counts map[time.Weekday]int) time.Weekday {
	best := time.Sunday
	bestN := -1
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if n := counts[wd]; n > bestN {
			best, bestN = wd, n
		}
	}
	return best
}

// modalHour returns the most frequent hour; ties resolve to the smallest hour
func modalHour(counts map[int]int) int {
	best := 0
	bestN := -1
	for h := 0; h < 24; h++ {
		if n := counts[h]; n > bestN {
			best, bestN = h, n
		}
	}
	return best
}

// dominantType returns the media type holding the unique maximum count
// within a session, or "" when two or more types tie for the maximum.
func dominantType(counts map[string]int) string {
	maxN := 0
	for _, n := range counts {
		if n > maxN {
			maxN = n
		}
	}
	if maxN == 0 {
		return ""
	}

	dominant := ""
	tied := 0
	for mt, n := range counts {
		if n == maxN {
			tied++
			dominant = mt
		}
	}
	if tied > 1 {
		return ""
	}
	return dominant
}

// preciseHour is the fractional hour of day of a timestamp
func preciseHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0
}
