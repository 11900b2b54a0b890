package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"bibliocli/internal/cleaning"
	"bibliocli/internal/config"
	apperrors "bibliocli/internal/errors"
	"bibliocli/internal/exporter"
	"bibliocli/internal/features"
	"bibliocli/internal/loader"
	"bibliocli/internal/stats"
	"bibliocli/internal/validation"
	"bibliocli/pkg/contracts/domain"
)

// runner executes the pipeline stages in order: load, clean, derive
// features, validate, persist, estimate, export.
type runner struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *exporter.SnapshotStore
	audits *exporter.AuditWriter
	csv    *exporter.CSVWriter
}

func newRunner(cfg *config.Config, logger *slog.Logger) *runner {
	return &runner{
		cfg:    cfg,
		logger: logger,
		store:  exporter.NewSnapshotStore(&cfg.Paths, logger),
		audits: exporter.NewAuditWriter(logger),
		csv:    exporter.NewCSVWriter(),
	}
}

func (r *runner) run(ctx context.Context, useCached bool) error {
	if err := r.cfg.Paths.EnsureDirectories(); err != nil {
		return err
	}
	version := r.cfg.Paths.ProcessedVersion

	if useCached {
		// the snapshot already carries the derived features, so a
		// cached run only revalidates before estimating
		ds, _, err := r.store.Load(ctx, version)
		if err != nil {
			return fmt.Errorf("loading snapshot %s: %w", version, err)
		}
		if err := validation.New(r.logger).Validate(ds); err != nil {
			return fmt.Errorf("dataset validation: %w", err)
		}
		return r.estimate(ctx, version, ds)
	}

	ds, audit, err := r.loadAndClean(ctx)
	if err != nil {
		return err
	}

	builder := features.New(r.cfg.Features, r.logger)
	ds, profiles := builder.AddFeatures(ds)

	// validate before persisting anything so a failed run leaves no
	// half-written snapshot behind
	if err := validation.New(r.logger).Validate(ds); err != nil {
		return fmt.Errorf("dataset validation: %w", err)
	}

	if _, err := r.store.Save(ctx, version, ds); err != nil {
		return err
	}
	if err := r.audits.Write(r.cfg.Paths.AuditWorkbookPath(version), audit); err != nil {
		return err
	}
	if err := r.writeTimingProfiles(profiles); err != nil {
		return err
	}

	return r.estimate(ctx, version, ds)
}

// loadAndClean runs the raw stages and returns the cleaned dataset
// together with its cleaning audit. Nothing is persisted here.
func (r *runner) loadAndClean(ctx context.Context) (*domain.Dataset, *cleaning.AuditLog, error) {
	ld := loader.New(r.cfg.Schema, r.logger)

	raw, err := ld.LoadLoans(r.cfg.Paths.BorrowingsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading borrowings: %w", err)
	}

	calendar, err := ld.LoadClosedDays(r.cfg.Paths.ClosedDaysFile)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return nil, nil, fmt.Errorf("loading closed days: %w", err)
		}
		// without the calendar the weird-loan rule degrades to a skip
		r.logger.Warn("closed-days file missing, weird-loan detection disabled",
			slog.String("path", r.cfg.Paths.ClosedDaysFile))
		calendar = nil
	}

	engine := cleaning.NewEngine(r.cfg.Cleaning, r.logger)
	cleaned, audit, err := engine.Clean(ctx, raw, calendar)
	if err != nil {
		return nil, nil, fmt.Errorf("cleaning: %w", err)
	}

	return cleaned, audit, nil
}

// estimate runs every estimator and exports the results as JSON for
// the data API plus CSV curves for offline charting.
func (r *runner) estimate(ctx context.Context, version string, ds *domain.Dataset) error {
	est := stats.New(r.cfg.Analysis, r.logger)
	paths := &r.cfg.Paths

	curves, err := est.LearningCurve(ctx, ds)
	if err != nil {
		return fmt.Errorf("learning curve: %w", err)
	}
	if err := exporter.WriteEstimatesJSON(paths.EstimatePath(version, "learning_curve"), curves); err != nil {
		return err
	}
	if err := r.csv.WriteCurveCSV(filepath.Join(paths.ReportsDir, "late_curve_"+version+".csv"), curves.Late); err != nil {
		return err
	}
	if err := r.csv.WriteCurveCSV(filepath.Join(paths.ReportsDir, "extension_curve_"+version+".csv"), curves.Extension); err != nil {
		return err
	}

	stickiness, err := est.Stickiness(ctx, ds)
	if err != nil {
		return fmt.Errorf("stickiness: %w", err)
	}
	if err := exporter.WriteEstimatesJSON(paths.EstimatePath(version, "stickiness"), stickiness); err != nil {
		return err
	}

	regularity, err := est.TemporalRegularity(ctx, ds)
	if err != nil {
		return fmt.Errorf("temporal regularity: %w", err)
	}
	if err := exporter.WriteEstimatesJSON(paths.EstimatePath(version, "regularity"), regularity); err != nil {
		return err
	}

	mediaTypes := est.MediaTypeSessionStats(ds)
	return exporter.WriteEstimatesJSON(paths.EstimatePath(version, "media_types"), mediaTypes)
}

func (r *runner) writeTimingProfiles(profiles []domain.UserTimingProfile) error {
	records := make([][]string, len(profiles))
	for i, p := range profiles {
		records[i] = []string{
			p.UserID,
			strconv.Itoa(int(p.ModalWeekday)),
			strconv.Itoa(p.ModalHour),
			strconv.FormatFloat(p.MeanPreciseHour, 'f', 4, 64),
			strconv.FormatFloat(p.StdPreciseHour, 'f', 4, 64),
			strconv.Itoa(p.Visits),
		}
	}
	path := filepath.Join(r.cfg.Paths.ReportsDir, "user_timing_profiles.csv")
	return r.csv.WriteCSV(path, exporter.WriteOptions{
		Headers: []string{"user_id", "modal_weekday", "modal_hour", "mean_hour", "std_hour", "visits"},
		Records: records,
	})
}
