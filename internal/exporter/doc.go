// Package exporter persists pipeline outputs to disk.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with configurable delimiter
// and UTF-8 BOM for Excel compatibility.
//
// SnapshotStore: Saves and restores the cleaned, typed borrowing
// dataset as a versioned CSV snapshot with a metadata sidecar, so
// repeated analysis runs can skip the raw loading and cleaning stages.
//
// AuditWriter: Renders the cleaning audit trail as an Excel workbook
// with one sheet of removal events and one sheet of per-year totals.
//
// Example usage:
//
//	store := exporter.NewSnapshotStore(&cfg.Paths, logger)
//
//	// Persist a cleaned dataset under a version label
//	meta, err := store.Save(ctx, "v1", dataset)
//
//	// Restore it later
//	dataset, meta, err := store.Load(ctx, "v1")
package exporter
