package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8, cfg.Routing.MaxHops)
	assert.InDelta(t, 0.9, cfg.Learning.GradientDecay, 1e-9)
	assert.InDelta(t, 1e-3, cfg.Learning.GradientEpsilon, 1e-12)
	assert.Equal(t, BatcherProfileDefault, cfg.Batcher.Profile)
	assert.Equal(t, StrategyProperties, cfg.SelfOrganisation.Strategy)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigOptionsWin(t *testing.T) {
	cfg, err := NewConfig(
		WithWorkers(3),
		WithMaxHops(16),
		WithGradientDecay(0.8),
		WithBatcherProfile(BatcherProfileLowLatency),
		WithSelfOrganisation(42, StrategyHybrid),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 16, cfg.Routing.MaxHops)
	assert.InDelta(t, 0.8, cfg.Learning.GradientDecay, 1e-9)
	assert.Equal(t, int64(42), cfg.SelfOrganisation.Seed)
	assert.Equal(t, StrategyHybrid, cfg.SelfOrganisation.Strategy)
}

func TestNewConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero workers", WithWorkers(0)},
		{"negative hops", WithMaxHops(-1)},
		{"decay over one", WithGradientDecay(1.5)},
		{"zero decay", WithGradientDecay(0)},
		{"unknown profile", WithBatcherProfile("turbo")},
		{"unknown strategy", WithSelfOrganisation(1, "vibes")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			require.Error(t, err)
			assert.True(t, IsRuleViolation(err))
		})
	}
}

func TestConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("HAL9_MAX_HOPS", "12")
	t.Setenv("HAL9_GRADIENT_DECAY", "0.7")
	t.Setenv("HAL9_SELF_ORG_STRATEGY", "connectivity")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Routing.MaxHops)
	assert.InDelta(t, 0.7, cfg.Learning.GradientDecay, 1e-9)
	assert.Equal(t, StrategyConnectivity, cfg.SelfOrganisation.Strategy)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
workers: 2
routing:
  max_hops: 4
learning:
  gradient_decay: 0.85
batcher:
  profile: high_throughput
self_organisation:
  seed: 7
  strategy: hybrid
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 4, cfg.Routing.MaxHops)
	assert.InDelta(t, 0.85, cfg.Learning.GradientDecay, 1e-9)
	assert.Equal(t, BatcherProfileHighThroughput, cfg.Batcher.Profile)
	assert.Equal(t, int64(7), cfg.SelfOrganisation.Seed)
}

func TestCharacteristicsOverride(t *testing.T) {
	horizon := int64(250)
	rate := 0.2
	cfg := DefaultConfig()
	cfg.Layers = map[string]LayerOverride{
		string(LayerReflexive): {TimeHorizonMs: &horizon, LearningRate: &rate},
	}

	ch := cfg.CharacteristicsFor(LayerReflexive)
	assert.Equal(t, 250*time.Millisecond, ch.TimeHorizon)
	assert.InDelta(t, 0.2, ch.LearningRate, 1e-9)
	// Untouched fields keep layer defaults.
	assert.InDelta(t, 0.1, ch.AbstractionLevel, 1e-9)

	// Other layers are unaffected.
	assert.Equal(t, time.Hour, cfg.CharacteristicsFor(LayerStrategic).TimeHorizon)
}
