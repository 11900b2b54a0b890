package exporter

import (
	"strconv"
	"time"

	"bibliocli/pkg/contracts/domain"
)

// formatNullFloat renders a nullable numeric cell; null becomes empty
func formatNullFloat(f domain.NullFloat) string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Float64, 'f', -1, 64)
}

// formatNullTime renders a nullable timestamp as RFC3339; null becomes empty
func formatNullTime(t domain.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(time.RFC3339)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// parseNullFloat is the inverse of formatNullFloat
func parseNullFloat(s string) domain.NullFloat {
	if s == "" {
		return domain.NullFloat{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.NullFloat{}
	}
	return domain.Float(v)
}

// parseNullTime is the inverse of formatNullTime
func parseNullTime(s string) domain.NullTime {
	if s == "" {
		return domain.NullTime{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return domain.NullTime{}
	}
	return domain.Timestamp(t)
}
