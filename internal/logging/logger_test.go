package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	logger, err := New("debug", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("warn", "console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := New("loud", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"INFO", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		lvl, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, lvl, tt.in)
	}
}
