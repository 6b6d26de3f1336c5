package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_DEV_SECRET", "dev-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5*time.Second, cfg.CountdownDuration)
	assert.Equal(t, 20, cfg.JoinRatePerMinute)
	assert.False(t, cfg.Storage.Enabled())
	assert.Empty(t, cfg.Log.Dir)
}

func TestLoad_RequiresAuthKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_DEV_SECRET", "")
	t.Setenv("AUTH_JWT_PUBLIC_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsDevSecretInProduction(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_DEV_SECRET", "dev-secret")
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTH_DEV_SECRET=from-file\nCOUNTDOWN_SECONDS=3\nSTORAGE_BUCKET=avatars\nSTORAGE_ACCESS_KEY=ak\nSTORAGE_SECRET_KEY=sk\n"), 0o600))
	// godotenv does not override variables that are already set
	os.Unsetenv("AUTH_DEV_SECRET")
	os.Unsetenv("COUNTDOWN_SECONDS")
	t.Cleanup(func() {
		os.Unsetenv("AUTH_DEV_SECRET")
		os.Unsetenv("COUNTDOWN_SECONDS")
		os.Unsetenv("STORAGE_BUCKET")
		os.Unsetenv("STORAGE_ACCESS_KEY")
		os.Unsetenv("STORAGE_SECRET_KEY")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AuthDevSecret)
	assert.Equal(t, 3*time.Second, cfg.CountdownDuration)
	assert.True(t, cfg.Storage.Enabled())
}
