package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/config"
)

func TestNew_Stdout(t *testing.T) {
	logger, err := New(config.LogConfig{}, false)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(config.LogConfig{Dir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, true)
	require.NoError(t, err)

	logger.Info("room_created", "code", "ABC234")

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "room_created")
	assert.Contains(t, string(data), "ABC234")
}

func TestNew_InvalidFileConfig(t *testing.T) {
	_, err := New(config.LogConfig{Dir: t.TempDir()}, false)
	assert.Error(t, err)
}
