package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "ollama", cfg.Oracle.Provider)
	require.Equal(t, "qwen2.5-coder:7b", cfg.Oracle.Ollama.Model)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, 100, cfg.Cache.MaxEntries)
	require.Len(t, cfg.Security.RiskyActions, 5)
	require.Contains(t, cfg.Security.RiskyActions, "auto_login")
	require.NotContains(t, cfg.Security.RiskyActions, "make_payment")
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Cache.MaxEntries, cfg.Cache.MaxEntries)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
oracle:
  provider: anthropic
browser:
  headless: true
cache:
  max_entries: 50
security:
  require_approval: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.Oracle.Provider)
	require.True(t, cfg.Browser.Headless)
	require.Equal(t, 50, cfg.Cache.MaxEntries)
	require.False(t, cfg.Security.RequireApproval)
	require.Len(t, cfg.Security.RiskyActions, 5, "risky actions keep defaults when not overridden")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Browser.Headless = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Browser.Headless)
}

func TestIsRiskyAction(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, cfg.IsRiskyAction("auto_login"))
	require.True(t, cfg.IsRiskyAction("delete"))
	require.False(t, cfg.IsRiskyAction("click"))
	require.False(t, cfg.IsRiskyAction("make_payment"))
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.MaxEntries = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Oracle.Provider = "not-a-backend"
	require.Error(t, cfg.Validate())
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 120_000_000_000.0, float64(cfg.OllamaTimeout()))
	require.Equal(t, 30_000_000_000.0, float64(cfg.BrowserTimeout()))
	require.Equal(t, 24*60*60*1e9, float64(cfg.MaxAge()))
}
