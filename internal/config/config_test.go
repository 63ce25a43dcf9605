package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 128, cfg.Graph.NodeCount)
	assert.Equal(t, 0.1, cfg.Engine.EpsilonThreshold)
	assert.Equal(t, 0.85, cfg.Engine.ContractionRatio)
	assert.Equal(t, 50, cfg.Engine.HistoryWindow)
	assert.Equal(t, 20, cfg.Journal.HotRetention)
	assert.Equal(t, 6, cfg.Journal.CompressionLevel)
	assert.Equal(t, 10*time.Second, cfg.Journal.LockTimeout)
	require.NoError(t, cfg.TensionConfig().Validate())
}

func TestLoad_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 7
backend: gonum
graph:
  node_count: 16
engine:
  epsilon_threshold: 0.05
journal:
  dir: /tmp/cocoons
  lock_timeout: 3s
log:
  level: debug
  json: true
`), 0o600))

	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	assert.EqualValues(t, 7, cfg.Seed)
	assert.Equal(t, "gonum", cfg.Backend)
	assert.Equal(t, 16, cfg.Graph.NodeCount)
	assert.Equal(t, 0.05, cfg.Engine.EpsilonThreshold)
	assert.Equal(t, 0.85, cfg.Engine.ContractionRatio, "untouched keys keep defaults")
	assert.Equal(t, "/tmp/cocoons", cfg.Journal.Dir)
	assert.Equal(t, 3*time.Second, cfg.Journal.LockTimeout)
	assert.True(t, cfg.Log.JSON)

	jc := cfg.JournalConfig()
	assert.Equal(t, "/tmp/cocoons", jc.Dir)
	assert.Equal(t, 3*time.Second, jc.LockTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvJournalDir: "/var/lib/cocoons",
		EnvStateDB:    "/var/lib/identity.db",
		EnvLogLevel:   "WARN",
	}
	cfg, err := LoadWithEnv("", func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cocoons", cfg.Journal.Dir)
	assert.Equal(t, "/var/lib/identity.db", cfg.State.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph: [unclosed"), 0o600))
	_, err = LoadWithEnv(path, noEnv)
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		field  string
	}{
		"node count":         {func(c *Config) { c.Graph.NodeCount = 0 }, "graph.node_count"},
		"epsilon":            {func(c *Config) { c.Engine.EpsilonThreshold = 1 }, "engine.epsilon_threshold"},
		"contraction":        {func(c *Config) { c.Engine.ContractionRatio = 0 }, "engine.contraction_ratio"},
		"noise":              {func(c *Config) { c.Engine.NoiseVariance = -1 }, "engine.noise_variance"},
		"history":            {func(c *Config) { c.Engine.HistoryWindow = 0 }, "engine.history_window"},
		"convergence window": {func(c *Config) { c.Engine.ConvergenceWindow = 60 }, "engine.convergence_window"},
		"journal dir":        {func(c *Config) { c.Journal.Dir = "" }, "journal.dir"},
		"retention":          {func(c *Config) { c.Journal.HotRetention = 0 }, "journal.hot_retention"},
		"compression":        {func(c *Config) { c.Journal.CompressionLevel = 0 }, "journal.compression_level"},
		"lock timeout":       {func(c *Config) { c.Journal.LockTimeout = 0 }, "journal.lock_timeout"},
		"backend":            {func(c *Config) { c.Backend = "numpy" }, "backend"},
		"encoder kind":       {func(c *Config) { c.Encoder.Kind = "bert" }, "encoder.kind"},
		"encoder addr":       {func(c *Config) { c.Encoder.Kind = "grpc" }, "encoder.addr"},
		"log level":          {func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}
