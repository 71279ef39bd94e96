package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		want  zerolog.Level
	}{
		{name: "debug", level: DebugLevel, want: zerolog.DebugLevel},
		{name: "info", level: InfoLevel, want: zerolog.InfoLevel},
		{name: "warn", level: WarnLevel, want: zerolog.WarnLevel},
		{name: "error", level: ErrorLevel, want: zerolog.ErrorLevel},
		{name: "unknown falls back to info", level: "verbose", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestWithKeyJSONFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel})

	logger := WithKey("repository", "user:42")
	logger.Warn().Msg("skipped record")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "repository", entry["component"])
	assert.Equal(t, "user:42", entry["key"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "skipped record", entry["message"])
}

func TestWithTxID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel})

	logger := WithTxID("tx-1")
	logger.Info().Msg("committed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "transaction", entry["component"])
	assert.Equal(t, "tx-1", entry["tx_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel})

	Info("should be filtered")
	assert.Zero(t, buf.Len())

	Error("should be written")
	assert.Contains(t, buf.String(), "should be written")
}
