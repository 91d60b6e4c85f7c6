package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"ATELIER_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "PORT", "ATELIER_ADDR", "ATELIER_OFFLINE"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Addr)
	assert.False(t, cfg.Configured())
	assert.Equal(t, 10*time.Second, cfg.Runway.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Runway.MaxWait)
	assert.Equal(t, 20, cfg.Session.HistoryWindow)
	assert.Equal(t, uint32(5), cfg.Provider.BreakerFailures)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", " secret ")
	t.Setenv("ATELIER_RUNWAY_POLL_INTERVAL", "2s")
	t.Setenv("ATELIER_SESSION_MANUAL_DISCLOSURE", "true")
	t.Setenv("PORT", "9090")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.True(t, cfg.Configured())
	assert.Equal(t, 2*time.Second, cfg.Runway.PollInterval)
	assert.True(t, cfg.Session.ManualDisclosure)
	assert.Equal(t, ":9090", cfg.Addr)
}

func TestLoad_OfflineDisablesProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret")
	v := New()
	v.Set("offline", true)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.False(t, cfg.Configured())
}

func TestLoad_RejectsInvertedPollBounds(t *testing.T) {
	clearEnv(t)
	v := New()
	v.Set("runway.max_wait", time.Second)
	_, err := Load(v)
	assert.ErrorContains(t, err, "runway.max_wait")
}
