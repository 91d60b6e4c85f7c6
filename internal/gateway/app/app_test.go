package app

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/gateway/config"
	"atelier/internal/provider"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ATELIER_API_KEY", "")
	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	return cfg
}

func TestNewProvider_Modes(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	cfg := testConfig(t)

	p, err := NewProvider(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.False(t, provider.IsConfigured(p))

	cfg.Offline = true
	p, err = NewProvider(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Name())
}

func TestNewStudio_LoadsCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`default: loft
scenarios:
  - id: loft
    label: Loft
    prompt: a sunlit industrial loft
`), 0o644))

	cfg := testConfig(t)
	cfg.Runway.Catalog = path
	s, err := NewStudio(provider.Unconfigured{}, cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "Loft", s.Scenarios().Resolve("").Label)

	cfg.Runway.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewStudio(provider.Unconfigured{}, cfg, log.New(io.Discard, "", 0))
	assert.Error(t, err)
}
