package cognitive

import (
	"fmt"

	"github.com/2lab-ai/hal9go/core"
)

// Factory creates cognitive units for a layer from a config.
type Factory interface {
	CreateUnit(layer core.CognitiveLayer, cfg Config) (Unit, error)
}

// DefaultFactory builds the standard unit per layer.
type DefaultFactory struct {
	Logger core.Logger
}

// NewDefaultFactory creates the standard factory.
func NewDefaultFactory(logger core.Logger) *DefaultFactory {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &DefaultFactory{Logger: logger}
}

// CreateUnit builds a unit of the requested layer. The config's Layer
// field is overridden by the layer argument.
func (f *DefaultFactory) CreateUnit(layer core.CognitiveLayer, cfg Config) (Unit, error) {
	if !layer.Valid() {
		return nil, fmt.Errorf("unknown layer %q: %w", layer, core.ErrRuleViolation)
	}
	if cfg.ID.IsZero() {
		return nil, fmt.Errorf("unit config requires an id: %w", core.ErrRuleViolation)
	}
	if cfg.Logger == nil {
		cfg.Logger = f.Logger
	}
	cfg.Layer = layer

	switch layer {
	case core.LayerReflexive:
		return NewReflexiveUnit(cfg, nil), nil
	case core.LayerImplementation:
		return NewImplementationUnit(cfg, nil), nil
	case core.LayerOperational:
		return NewOperationalUnit(cfg), nil
	case core.LayerTactical:
		return NewTacticalUnit(cfg), nil
	case core.LayerStrategic:
		return NewStrategicUnit(cfg), nil
	default:
		return nil, fmt.Errorf("unknown layer %q: %w", layer, core.ErrInternal)
	}
}
