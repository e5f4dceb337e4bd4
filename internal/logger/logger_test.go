package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedJSONFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "trading-core.log")

	log, err := New(&Config{LogFile: logFile, MaxSize: 1, Development: true})
	require.NoError(t, err)

	log.Info("boot")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boot")
}

func TestWithComponentTagsEveryLine(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "trading-core.log")

	log, err := New(&Config{LogFile: logFile, MaxSize: 1})
	require.NoError(t, err)

	log.WithComponent("core").Info("component line")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"core"`)
	assert.Contains(t, string(data), "component line")
}
