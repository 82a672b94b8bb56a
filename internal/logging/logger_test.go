package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"diskwipe/internal/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "diskwipe.log")

	logger, err := New(cfg, false)
	require.NoError(t, err)
	logger.Info("pass started")
	_ = logger.Sync()

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"pass started"`))
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = ""
	cfg.Logging.Level = "LOUD"

	_, err := New(cfg, true)
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}

func TestNewConsoleHonoursLevel(t *testing.T) {
	logger := NewConsole(zapcore.WarnLevel)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
