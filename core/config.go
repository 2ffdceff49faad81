package core

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the orchestrator core.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithWorkers(8),
//	    core.WithGradientDecay(0.85),
//	)
type Config struct {
	// Workers sizes the substrate's task pool. Defaults to the CPU count.
	Workers int `json:"workers" yaml:"workers" env:"HAL9_WORKERS"`

	// MaxUnits caps the number of live units. 0 means unlimited.
	MaxUnits int `json:"max_units" yaml:"max_units" env:"HAL9_MAX_UNITS"`

	// Routing configuration
	Routing RoutingConfig `json:"routing" yaml:"routing"`

	// Learning configuration
	Learning LearningConfig `json:"learning" yaml:"learning"`

	// Batcher configuration
	Batcher BatcherConfig `json:"batcher" yaml:"batcher"`

	// SelfOrganisation configuration
	SelfOrganisation SelfOrganisationConfig `json:"self_organisation" yaml:"self_organisation"`

	// Spatial index configuration
	Spatial SpatialConfig `json:"spatial" yaml:"spatial"`

	// Layers allows per-layer characteristic overrides, keyed by layer name.
	Layers map[string]LayerOverride `json:"layers,omitempty" yaml:"layers,omitempty"`

	// Resources declares what the substrate accounter may hand out.
	Resources ResourceConfig `json:"resources" yaml:"resources"`

	// Store configuration (optional persistence)
	Store StoreConfig `json:"store" yaml:"store"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// ShutdownGrace bounds the drain phase of a two-phase shutdown.
	ShutdownGrace time.Duration `json:"shutdown_grace" yaml:"shutdown_grace" env:"HAL9_SHUTDOWN_GRACE"`
}

// RoutingConfig bounds path search.
type RoutingConfig struct {
	MaxHops int `json:"max_hops" yaml:"max_hops" env:"HAL9_MAX_HOPS"`
}

// LearningConfig controls backward gradient propagation.
type LearningConfig struct {
	GradientDecay   float64 `json:"gradient_decay" yaml:"gradient_decay" env:"HAL9_GRADIENT_DECAY"`
	GradientEpsilon float64 `json:"gradient_epsilon" yaml:"gradient_epsilon" env:"HAL9_GRADIENT_EPSILON"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth" env:"HAL9_GRADIENT_MAX_DEPTH"`
	// EffectivenessThreshold is the sliding-window success rate under which
	// recent adjustments get rolled back.
	EffectivenessThreshold float64 `json:"effectiveness_threshold" yaml:"effectiveness_threshold"`
}

// BatcherProfile selects a predefined batching trade-off.
type BatcherProfile string

const (
	BatcherProfileLowLatency     BatcherProfile = "low_latency"
	BatcherProfileDefault        BatcherProfile = "default"
	BatcherProfileHighThroughput BatcherProfile = "high_throughput"
)

// BatcherConfig selects the signal batching profile.
type BatcherConfig struct {
	Profile BatcherProfile `json:"profile" yaml:"profile" env:"HAL9_BATCHER_PROFILE"`
}

// ClusteringStrategy selects how self-organisation groups units.
type ClusteringStrategy string

const (
	StrategyProperties   ClusteringStrategy = "properties"
	StrategyConnectivity ClusteringStrategy = "connectivity"
	StrategyHybrid       ClusteringStrategy = "hybrid"
)

// SelfOrganisationConfig seeds and shapes emergent layer discovery.
type SelfOrganisationConfig struct {
	Seed     int64              `json:"seed" yaml:"seed" env:"HAL9_SELF_ORG_SEED"`
	Strategy ClusteringStrategy `json:"strategy" yaml:"strategy" env:"HAL9_SELF_ORG_STRATEGY"`
}

// SpatialConfig tunes the neighbour-discovery grid.
type SpatialConfig struct {
	// CellSizeHint overrides the volume-based cell size heuristic when > 0.
	CellSizeHint float64 `json:"cell_size_hint" yaml:"cell_size_hint" env:"HAL9_SPATIAL_CELL_SIZE"`
}

// LayerOverride replaces selected characteristics of one layer.
type LayerOverride struct {
	AbstractionLevel    *float64 `json:"abstraction_level,omitempty" yaml:"abstraction_level,omitempty"`
	TimeHorizonMs       *int64   `json:"time_horizon_ms,omitempty" yaml:"time_horizon_ms,omitempty"`
	ComplexityThreshold *float64 `json:"complexity_threshold,omitempty" yaml:"complexity_threshold,omitempty"`
	LearningRate        *float64 `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
}

// ResourceConfig declares allocatable host resources.
type ResourceConfig struct {
	CPUCores int `json:"cpu_cores" yaml:"cpu_cores" env:"HAL9_CPU_CORES"`
	MemoryMB int `json:"memory_mb" yaml:"memory_mb" env:"HAL9_MEMORY_MB"`
	GPUs     int `json:"gpus" yaml:"gpus" env:"HAL9_GPUS"`
}

// StoreConfig selects the optional persistence backend.
type StoreConfig struct {
	Provider string `json:"provider" yaml:"provider" env:"HAL9_STORE_PROVIDER"`
	RedisURL string `json:"redis_url" yaml:"redis_url" env:"HAL9_REDIS_URL,REDIS_URL"`
}

// TelemetryConfig controls the optional OpenTelemetry module.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"HAL9_TELEMETRY_ENABLED"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"HAL9_SERVICE_NAME,OTEL_SERVICE_NAME"`
}

// Option is a functional option for Config.
type Option func(*Config)

// WithWorkers sets the substrate worker count.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithMaxUnits caps the number of live units.
func WithMaxUnits(n int) Option {
	return func(c *Config) { c.MaxUnits = n }
}

// WithMaxHops bounds routing path length.
func WithMaxHops(n int) Option {
	return func(c *Config) { c.Routing.MaxHops = n }
}

// WithGradientDecay sets the per-hop magnitude decay, in (0,1].
func WithGradientDecay(decay float64) Option {
	return func(c *Config) { c.Learning.GradientDecay = decay }
}

// WithGradientEpsilon sets the magnitude below which propagation stops.
func WithGradientEpsilon(eps float64) Option {
	return func(c *Config) { c.Learning.GradientEpsilon = eps }
}

// WithBatcherProfile selects the batching trade-off.
func WithBatcherProfile(p BatcherProfile) Option {
	return func(c *Config) { c.Batcher.Profile = p }
}

// WithSelfOrganisation seeds emergent layer discovery.
func WithSelfOrganisation(seed int64, strategy ClusteringStrategy) Option {
	return func(c *Config) {
		c.SelfOrganisation.Seed = seed
		c.SelfOrganisation.Strategy = strategy
	}
}

// WithSpatialCellSize overrides the spatial grid cell size heuristic.
func WithSpatialCellSize(size float64) Option {
	return func(c *Config) { c.Spatial.CellSizeHint = size }
}

// WithResources declares allocatable host resources.
func WithResources(cpuCores, memoryMB, gpus int) Option {
	return func(c *Config) {
		c.Resources = ResourceConfig{CPUCores: cpuCores, MemoryMB: memoryMB, GPUs: gpus}
	}
}

// WithShutdownGrace bounds the drain phase during shutdown.
func WithShutdownGrace(d time.Duration) Option {
	return func(c *Config) { c.ShutdownGrace = d }
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Workers: runtime.NumCPU(),
		Routing: RoutingConfig{MaxHops: 8},
		Learning: LearningConfig{
			GradientDecay:          0.9,
			GradientEpsilon:        1e-3,
			MaxDepth:               5,
			EffectivenessThreshold: 0.3,
		},
		Batcher: BatcherConfig{Profile: BatcherProfileDefault},
		SelfOrganisation: SelfOrganisationConfig{
			Strategy: StrategyProperties,
		},
		Resources: ResourceConfig{
			CPUCores: runtime.NumCPU(),
			MemoryMB: 1024,
		},
		Store:         StoreConfig{Provider: "memory"},
		Telemetry:     TelemetryConfig{ServiceName: "hal9-orchestrator"},
		ShutdownGrace: 10 * time.Second,
	}
}

// NewConfig builds a Config from defaults, then environment variables,
// then the given options, and validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnvironment()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file over the defaults. Environment
// variables and options still take precedence via NewConfig semantics:
// callers usually load the file first and then apply options manually.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overlays recognised environment variables: the ones read
// below. The env tags for max_depth, resources, telemetry enabled, shutdown
// grace and OTEL_SERVICE_NAME are not read; those fields come only from
// defaults, YAML or options.
func (c *Config) applyEnvironment() {
	if v := envInt("HAL9_WORKERS"); v != nil {
		c.Workers = *v
	}
	if v := envInt("HAL9_MAX_UNITS"); v != nil {
		c.MaxUnits = *v
	}
	if v := envInt("HAL9_MAX_HOPS"); v != nil {
		c.Routing.MaxHops = *v
	}
	if v := envFloat("HAL9_GRADIENT_DECAY"); v != nil {
		c.Learning.GradientDecay = *v
	}
	if v := envFloat("HAL9_GRADIENT_EPSILON"); v != nil {
		c.Learning.GradientEpsilon = *v
	}
	if v := os.Getenv("HAL9_BATCHER_PROFILE"); v != "" {
		c.Batcher.Profile = BatcherProfile(v)
	}
	if v := envInt("HAL9_SELF_ORG_SEED"); v != nil {
		c.SelfOrganisation.Seed = int64(*v)
	}
	if v := os.Getenv("HAL9_SELF_ORG_STRATEGY"); v != "" {
		c.SelfOrganisation.Strategy = ClusteringStrategy(v)
	}
	if v := envFloat("HAL9_SPATIAL_CELL_SIZE"); v != nil {
		c.Spatial.CellSizeHint = *v
	}
	if v := os.Getenv("HAL9_STORE_PROVIDER"); v != "" {
		c.Store.Provider = v
	}
	if v := os.Getenv("HAL9_REDIS_URL"); v != "" {
		c.Store.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv("HAL9_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
}

// Validate checks option ranges. It is called by NewConfig but exported so
// hand-built configs can be checked too.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d: %w", c.Workers, ErrRuleViolation)
	}
	if c.Routing.MaxHops <= 0 {
		return fmt.Errorf("max_hops must be positive, got %d: %w", c.Routing.MaxHops, ErrRuleViolation)
	}
	if c.Learning.GradientDecay <= 0 || c.Learning.GradientDecay > 1 {
		return fmt.Errorf("gradient_decay must be in (0,1], got %g: %w", c.Learning.GradientDecay, ErrRuleViolation)
	}
	if c.Learning.GradientEpsilon < 0 {
		return fmt.Errorf("gradient_epsilon must be non-negative, got %g: %w", c.Learning.GradientEpsilon, ErrRuleViolation)
	}
	switch c.Batcher.Profile {
	case BatcherProfileLowLatency, BatcherProfileDefault, BatcherProfileHighThroughput:
	default:
		return fmt.Errorf("unknown batcher profile %q: %w", c.Batcher.Profile, ErrRuleViolation)
	}
	switch c.SelfOrganisation.Strategy {
	case StrategyProperties, StrategyConnectivity, StrategyHybrid:
	default:
		return fmt.Errorf("unknown clustering strategy %q: %w", c.SelfOrganisation.Strategy, ErrRuleViolation)
	}
	return nil
}

// CharacteristicsFor resolves a layer's characteristics with any configured
// overrides applied.
func (c *Config) CharacteristicsFor(layer CognitiveLayer) LayerCharacteristics {
	ch := layer.Characteristics()
	if c.Layers == nil {
		return ch
	}
	ov, ok := c.Layers[string(layer)]
	if !ok {
		return ch
	}
	if ov.AbstractionLevel != nil {
		ch.AbstractionLevel = *ov.AbstractionLevel
	}
	if ov.TimeHorizonMs != nil {
		ch.TimeHorizon = time.Duration(*ov.TimeHorizonMs) * time.Millisecond
	}
	if ov.ComplexityThreshold != nil {
		ch.ComplexityThreshold = *ov.ComplexityThreshold
	}
	if ov.LearningRate != nil {
		ch.LearningRate = *ov.LearningRate
	}
	return ch
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func envFloat(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
