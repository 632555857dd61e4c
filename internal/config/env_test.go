package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadArchiveEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ARCHIVE_URL", "ARCHIVE_USERNAME", "ARCHIVE_PASSWORD", "ARCHIVE_TIMEOUT", "ARCHIVE_VERBOSE"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	env, err := LoadArchiveEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultArchiveURL, env.URL)
	assert.Equal(t, 60*time.Second, env.Timeout)
	assert.False(t, env.Verbose)
	assert.False(t, env.HasCredentials())
}

func TestLoadArchiveEnv_Overrides(t *testing.T) {
	t.Setenv("ARCHIVE_URL", "http://localhost:8000")
	t.Setenv("ARCHIVE_USERNAME", "obs@example.org")
	t.Setenv("ARCHIVE_PASSWORD", "hunter2")
	t.Setenv("ARCHIVE_TIMEOUT", "5s")
	t.Setenv("ARCHIVE_VERBOSE", "true")

	env, err := LoadArchiveEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", env.URL)
	assert.Equal(t, 5*time.Second, env.Timeout)
	assert.True(t, env.Verbose)
	assert.True(t, env.HasCredentials())
}

func TestLoadArchiveEnv_Invalid(t *testing.T) {
	t.Setenv("ARCHIVE_TIMEOUT", "soon")
	_, err := LoadArchiveEnv()
	assert.Error(t, err)

	t.Setenv("ARCHIVE_TIMEOUT", "-1s")
	_, err = LoadArchiveEnv()
	assert.ErrorContains(t, err, "non-negative")
}
