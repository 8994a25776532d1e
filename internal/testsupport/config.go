package testsupport

import (
	"path/filepath"
	"testing"

	"petlabel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAllocationPolicy overrides the queue allocation policy on the test config.
func WithAllocationPolicy(policy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Labeling.AllocationPolicy = policy
	}
}

// WithTimeCeilings overrides the save-time ceilings on the test config.
func WithTimeCeilings(normal, rework int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Labeling.MaxAnnotationTimeSeconds = normal
		cfg.Labeling.MaxReworkTimeSeconds = rework
	}
}
