package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Hour, cfg.Data.Freq)
	assert.Equal(t, []string{"restaurant_1", "restaurant_2"}, cfg.Data.Sources)
	assert.Equal(t, 10, cfg.Pipeline.NFold)
	assert.Equal(t, 10, cfg.Pipeline.NEstimators)
	assert.Equal(t, 10, cfg.Pipeline.NModels)
	assert.Equal(t, 1, cfg.Pipeline.Degree)
	assert.Equal(t, 1, cfg.Pipeline.LagInWeek)
	assert.Equal(t, 7*24*time.Hour, cfg.Pipeline.Horizon)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline.NFold, cfg.Pipeline.NFold)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.NoError(t, err)
}

func TestLoadAppliesYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cashcast.yml")
	content := `
pipeline:
  start_week: 31
  end_week: 40
  next_week: 41
  n_fold: 5
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 31, cfg.Pipeline.StartWeek)
	assert.Equal(t, 40, cfg.Pipeline.EndWeek)
	assert.Equal(t, 5, cfg.Pipeline.NFold)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Pipeline.NModels)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cashcast.yml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  n_fold: 5\n"), 0644))
	t.Setenv("CASHCAST_PIPELINE_N_FOLD", "7")
	t.Setenv("CASHCAST_DATA_SOURCES", "shop_a,shop_b,shop_c")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.NFold)
	assert.Equal(t, []string{"shop_a", "shop_b", "shop_c"}, cfg.Data.Sources)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"n_fold below 2", func(c *Config) { c.Pipeline.NFold = 1 }},
		{"end week before start week", func(c *Config) {
			c.Pipeline.StartWeek = 40
			c.Pipeline.EndWeek = 31
		}},
		{"zero models", func(c *Config) { c.Pipeline.NModels = 0 }},
		{"no sources", func(c *Config) { c.Data.Sources = nil }},
		{"negative freq", func(c *Config) { c.Data.Freq = -time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEffectiveWorkers(t *testing.T) {
	p := PipelineConfig{Workers: 4}
	assert.Equal(t, 4, p.EffectiveWorkers())

	p.Workers = 0
	assert.Positive(t, p.EffectiveWorkers())
}
