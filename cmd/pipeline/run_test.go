package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliocli/internal/config"
	"bibliocli/internal/shared/testutil"
)

const rawHeader = "Ausleihdatum/Uhrzeit;Rückgabedatum/Uhrzeit;Benutzer-Systemnummer;Benutzerkategorie;Medientyp;ISBN;Barcode;Leihdauer;Tage_zu_spät;Verspätet;Anzahl_Verlängerungen"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.BorrowingsDir = filepath.Join(base, "raw", "borrowings")
	cfg.Paths.ClosedDaysFile = filepath.Join(base, "raw", "closed_days.csv")
	cfg.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfg.Paths.ReportsDir = filepath.Join(base, "reports")

	// keep resampling loops small so the run stays fast
	cfg.Analysis.BootstrapResamples = 50
	cfg.Analysis.StickinessResamples = 20
	cfg.Analysis.Permutations = 20
	cfg.Analysis.MinUserVisits = 2
	cfg.Analysis.Workers = 2

	return cfg
}

func writeFixtures(t *testing.T, cfg *config.Config) {
	t.Helper()

	rows := []string{
		// user 1001, three sessions of books, on time
		"01.03.2022 10:00;15.03.2022 09:00;1001;student;book;978-1;B1;14;0;nein;0",
		"01.03.2022 10:05;15.03.2022 09:00;1001;student;book;978-2;B2;14;0;nein;0",
		"08.03.2022 11:00;22.03.2022 09:00;1001;student;book;978-3;B3;14;0;nein;1",
		"15.03.2022 14:00;29.03.2022 10:00;1001;student;dvd;;D1;14;0;nein;0",
		// user 1002, late once
		"02.03.2022 12:00;18.03.2022 09:00;1002;staff;dvd;;D2;14;2;ja;0",
		"09.03.2022 12:30;23.03.2022 09:00;1002;staff;dvd;;D3;14;0;nein;2",
		// dropped: empty issue cell
		";15.03.2022 09:00;1003;student;book;978-4;B4;14;0;nein;0",
		// dropped: excluded maintenance category
		"03.03.2022 09:00;04.03.2022 09:00;9999;SYS;book;978-5;B5;1;0;nein;0",
	}
	testutil.WriteBorrowingsCSV(t, cfg.Paths.BorrowingsDir, 2022, rawHeader, rows)

	closed := "schliesstag\n25.12.2022\n"
	require.NoError(t, os.WriteFile(cfg.Paths.ClosedDaysFile, []byte(closed), 0644))
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)

	logger, captured := testutil.NewLogger(t)
	r := newRunner(cfg, logger)
	require.NoError(t, r.run(context.Background(), false))

	// snapshot holds only the surviving rows, with their derived
	// features already on board
	ds, meta, err := r.store.Load(context.Background(), cfg.Paths.ProcessedVersion)
	require.NoError(t, err)
	assert.Equal(t, 6, meta.Rows)
	assert.Len(t, ds.Records, 6)
	for _, rec := range ds.Records {
		require.NotNil(t, rec.Features, "user %s", rec.UserID)
		assert.GreaterOrEqual(t, rec.Features.SessionIndex, 1)
	}

	version := cfg.Paths.ProcessedVersion
	for _, path := range []string{
		cfg.Paths.AuditWorkbookPath(version),
		cfg.Paths.EstimatePath(version, "learning_curve"),
		cfg.Paths.EstimatePath(version, "stickiness"),
		cfg.Paths.EstimatePath(version, "regularity"),
		cfg.Paths.EstimatePath(version, "media_types"),
		filepath.Join(cfg.Paths.ReportsDir, "late_curve_"+version+".csv"),
		filepath.Join(cfg.Paths.ReportsDir, "extension_curve_"+version+".csv"),
		filepath.Join(cfg.Paths.ReportsDir, "user_timing_profiles.csv"),
	} {
		_, err := os.Stat(path)
		assert.NoError(t, err, "expected output %s", path)
	}

	assert.True(t, captured.ContainsMessage("snapshot saved"))
}

func TestRunFromCachedSnapshot(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)

	logger, _ := testutil.NewLogger(t)
	r := newRunner(cfg, logger)
	require.NoError(t, r.run(context.Background(), false))

	// remove the raw inputs; the cached run must not touch them
	require.NoError(t, os.RemoveAll(cfg.Paths.BorrowingsDir))
	require.NoError(t, os.Remove(cfg.Paths.ClosedDaysFile))

	require.NoError(t, r.run(context.Background(), true))
}

func TestRunCachedWithoutSnapshot(t *testing.T) {
	cfg := testConfig(t)

	logger, _ := testutil.NewLogger(t)
	r := newRunner(cfg, logger)

	err := r.run(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
}

func TestRunWithoutClosedDays(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)
	require.NoError(t, os.Remove(cfg.Paths.ClosedDaysFile))

	logger, captured := testutil.NewLogger(t)
	r := newRunner(cfg, logger)
	require.NoError(t, r.run(context.Background(), false))

	assert.True(t, captured.ContainsMessage("closed-days file missing"))
}
