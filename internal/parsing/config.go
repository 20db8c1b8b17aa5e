package parsing

import (
	"errors"
	"fmt"
	"time"
)

// Config is passed to New and never changes for the life of an Engine.
type Config struct {
	// MaxAttempts caps strategy invocations per run.
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	// EnableRecovery turns on field-pattern recovery. The minimal default
	// record is returned either way.
	EnableRecovery bool `mapstructure:"enable_recovery" json:"enable_recovery" yaml:"enable_recovery"`
	// AcceptPartial lets corrected or recovered payloads end a run as PARTIAL.
	AcceptPartial bool `mapstructure:"accept_partial" json:"accept_partial" yaml:"accept_partial"`
	FieldMapping  bool `mapstructure:"field_mapping" json:"field_mapping" yaml:"field_mapping"`
	TypeCoercion  bool `mapstructure:"type_coercion" json:"type_coercion" yaml:"type_coercion"`
	// Budget is checked between attempts, never inside one.
	Budget              time.Duration `mapstructure:"budget" json:"budget" yaml:"budget"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxEditDistance     int           `mapstructure:"max_edit_distance" json:"max_edit_distance" yaml:"max_edit_distance"`
	// MaxInputBytes truncates oversized responses before normalization.
	MaxInputBytes int `mapstructure:"max_input_bytes" json:"max_input_bytes" yaml:"max_input_bytes"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:         4,
		EnableRecovery:      true,
		AcceptPartial:       true,
		FieldMapping:        true,
		TypeCoercion:        true,
		Budget:              30 * time.Second,
		ConfidenceThreshold: 0.3,
		MaxEditDistance:     2,
		MaxInputBytes:       1 << 20,
	}
}

var ErrInvalidConfig = errors.New("invalid parsing config")

func (c Config) Validate() error {
	switch {
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max_attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.Budget <= 0:
		return fmt.Errorf("%w: budget must be positive, got %s", ErrInvalidConfig, c.Budget)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: confidence_threshold must be within [0,1], got %v", ErrInvalidConfig, c.ConfidenceThreshold)
	case c.MaxEditDistance < 0:
		return fmt.Errorf("%w: max_edit_distance must not be negative", ErrInvalidConfig)
	case c.MaxInputBytes <= 0:
		return fmt.Errorf("%w: max_input_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}
