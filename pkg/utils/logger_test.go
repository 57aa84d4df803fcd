package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: path, Format: "json"})
	require.NoError(t, err)

	logger.Info("Proof uploaded", zap.String("invoice_id", "inv-1"))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"invoice_id":"inv-1"`)
	assert.Contains(t, string(content), `"timestamp"`)
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "verbose", OutputPath: "stdout", Format: "console"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}
