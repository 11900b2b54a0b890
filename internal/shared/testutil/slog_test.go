package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureHandler(t *testing.T) {
	logger, captured := NewLogger(t)

	logger.Info("snapshot saved", slog.String("version", "v1"), slog.Int("rows", 42))
	logger.Warn("rule skipped")

	records := captured.Records()
	assert.Len(t, records, 2)
	assert.Equal(t, slog.LevelInfo, records[0].Level)
	assert.Equal(t, "snapshot saved", records[0].Message)

	assert.True(t, captured.ContainsMessage("rule skipped"))
	assert.False(t, captured.ContainsMessage("nope"))

	assert.True(t, captured.ContainsAttr("version", "v1"))
	assert.True(t, captured.ContainsAttr("rows", int64(42)))
	assert.False(t, captured.ContainsAttr("version", "v2"))
}
