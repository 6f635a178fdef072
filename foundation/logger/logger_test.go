package logger_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, slog.LevelInfo, logger.FormatPretty, "qcbench")

	log.Debug("hidden")
	log.Info("query executed", "query_id", "weekly_revenue_trend", "rows", 12)
	log.WithGroup("eval").Warn("slow", "reason", "took too long")

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "[INFO "))
	assert.Contains(t, lines[0], "query executed service=qcbench query_id=weekly_revenue_trend rows=12")
	assert.Contains(t, lines[1], `eval.reason="took too long"`)
	assert.NotContains(t, out, "hidden")
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, slog.LevelDebug, logger.FormatJSON, "")

	log.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, err: true},
	}

	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
