package exporter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"bibliocli/internal/stats"
)

// curveHeader is the column order of an exported curve CSV
var curveHeader = []string{"session_index", "rate", "smoothed", "lower", "upper", "observations"}

// WriteCurveCSV exports one estimated curve as a comma CSV for the
// chart frontend. NaN estimates become empty cells.
func (w *CSVWriter) WriteCurveCSV(path string, points []stats.CurvePoint) error {
	records := make([][]string, len(points))
	for i, p := range points {
		records[i] = []string{
			strconv.Itoa(p.SessionIndex),
			formatEstimate(p.Rate),
			formatEstimate(p.Smoothed),
			formatEstimate(p.Lower),
			formatEstimate(p.Upper),
			strconv.Itoa(p.Observations),
		}
	}
	return w.WriteCSV(path, WriteOptions{Headers: curveHeader, Records: records})
}

// WriteEstimatesJSON persists an estimator result as indented JSON
func WriteEstimatesJSON(path string, result interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal estimates: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write estimates: %w", err)
	}
	return nil
}

func formatEstimate(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
