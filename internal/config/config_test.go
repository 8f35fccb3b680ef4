package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.InDelta(t, 10000, cfg.Account.InitialCapital, 0.01)
	assert.InDelta(t, 0.30, cfg.Risk.MaxSinglePositionPct, 1e-9)
	assert.Equal(t, []int{7, 30}, cfg.LLM.ReflectionPeriods)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Universe.Equity, "seed universe ships with equity funds")
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixiu.yaml")
	yaml := `
account:
  initial_capital: 50000
  current_cash: 42000
risk:
  max_single_position_pct: 0.2
server:
  port: 9999
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 50000, cfg.Account.InitialCapital, 0.01)
	assert.InDelta(t, 42000, cfg.Account.CurrentCash, 0.01)
	assert.InDelta(t, 0.2, cfg.Risk.MaxSinglePositionPct, 1e-9)
	assert.Equal(t, 9999, cfg.Server.Port)
	// Untouched sections keep defaults.
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "x.db"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []string{
		"llm:\n  provider: openai\n",
		"risk:\n  max_single_position_pct: 1.5\n",
		"database:\n  path: \"\"\n",
	}
	for _, yaml := range cases {
		path := filepath.Join(t.TempDir(), "pixiu.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
		_, err := Load(path)
		assert.Error(t, err, yaml)
	}
}

func TestProviderConfigSelection(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "anthropic"

	assert.Equal(t, cfg.LLM.Anthropic.AnalysisModel, cfg.LLM.ProviderConfig("").AnalysisModel)
	assert.Equal(t, cfg.LLM.Gemini.DecisionModel, cfg.LLM.ProviderConfig("gemini").DecisionModel)
}

func TestUniverseAllCoversEveryCategory(t *testing.T) {
	all := Default().Universe.All()
	for _, cat := range []string{"equity", "bond", "index", "gold", "qdii"} {
		assert.Contains(t, all, cat)
	}
}
