package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: pmgate
  env: test
risk:
  min_edge: 0.08
  max_open_positions: 3
sizing:
  kelly_fraction: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, 0.08, cfg.Risk.MinEdge)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 0.5, cfg.Sizing.KellyFraction)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.20, cfg.Drawdown.CriticalThreshold)
	assert.True(t, cfg.Engine.DryRun)
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("PMGATE_TEST_REGIME", "bearish")
	path := writeConfig(t, `
engine:
  market_regime: ${PMGATE_TEST_REGIME}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bearish", cfg.Engine.MarketRegime)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"negative edge", func(cfg *Config) { cfg.Risk.MinEdge = -0.1 }},
		{"kelly fraction above one", func(cfg *Config) { cfg.Sizing.KellyFraction = 1.5 }},
		{"nonzero critical multiplier", func(cfg *Config) { cfg.Drawdown.CriticalMultiplier = 0.1 }},
		{"thresholds out of order", func(cfg *Config) { cfg.Drawdown.WarmThreshold = 0.5 }},
		{"sizing factor above clamp", func(cfg *Config) {
			cfg.Sizing.RegimeFactors = map[string]float64{"mania": 2.0}
		}},
		{"completion threshold above one", func(cfg *Config) { cfg.Execution.CompletionThreshold = 1.2 }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestManagerHotReload(t *testing.T) {
	path := writeConfig(t, "risk:\n  min_edge: 0.05\n")

	initial, err := Load(path)
	require.NoError(t, err)

	m := NewManager(path, initial, time.Hour, testLogger())
	assert.Equal(t, 0.05, m.Current().Risk.MinEdge)

	var reloaded *Config
	m.OnReload(func(cfg *Config) { reloaded = cfg })

	require.NoError(t, os.WriteFile(path, []byte("risk:\n  min_edge: 0.09\n"), 0o644))
	bumpMtime(t, path)
	require.NoError(t, m.checkAndReload())

	assert.Equal(t, 0.09, m.Current().Risk.MinEdge)
	require.NotNil(t, reloaded)
	assert.Equal(t, 0.09, reloaded.Risk.MinEdge)
}

func TestManagerKeepsSnapshotOnBrokenReload(t *testing.T) {
	path := writeConfig(t, "risk:\n  min_edge: 0.05\n")

	initial, err := Load(path)
	require.NoError(t, err)
	m := NewManager(path, initial, time.Hour, testLogger())

	// An invalid file is rejected and the previous snapshot stays active.
	require.NoError(t, os.WriteFile(path, []byte("drawdown:\n  critical_multiplier: 0.5\n"), 0o644))
	bumpMtime(t, path)
	assert.Error(t, m.checkAndReload())
	assert.Equal(t, 0.05, m.Current().Risk.MinEdge)

	// The broken mtime is remembered; the same file is not re-parsed.
	assert.NoError(t, m.checkAndReload())
}

// bumpMtime pushes the file's mtime into the future so a rewrite within the
// filesystem's timestamp granularity still registers as a change
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}
