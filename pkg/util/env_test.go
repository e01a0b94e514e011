package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RESILIX_INT", " 42 ")
	t.Setenv("RESILIX_BOOL", "true")
	t.Setenv("RESILIX_SECONDS", "20")
	t.Setenv("RESILIX_DURATION", "1m30s")
	t.Setenv("RESILIX_BAD", "soon")

	assert.Equal(t, int64(42), GetIntEnv("RESILIX_INT"))
	assert.True(t, GetBoolEnv("RESILIX_BOOL"))
	assert.Equal(t, "fallback", GetEnvDefault("RESILIX_MISSING", "fallback"))
	assert.Equal(t, 20*time.Second, GetDurationEnv("RESILIX_SECONDS", time.Second))
	assert.Equal(t, 90*time.Second, GetDurationEnv("RESILIX_DURATION", time.Second))
	assert.Equal(t, time.Second, GetDurationEnv("RESILIX_BAD", time.Second))
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("RESILIX_A=file\nRESILIX_B=file\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("RESILIX_A", "env")
	t.Setenv("RESILIX_B", "")
	require.NoError(t, os.Unsetenv("RESILIX_B"))

	require.NoError(t, LoadEnv("test"))
	assert.Equal(t, "env", GetEnv("RESILIX_A"))
	assert.Equal(t, "file", GetEnv("RESILIX_B"))

	assert.Error(t, LoadEnv("missing"))
}

func TestInitDatabaseMemory(t *testing.T) {
	db, err := InitDatabase(nil, "", "")
	require.NoError(t, err)
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
