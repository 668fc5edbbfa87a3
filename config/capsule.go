package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/resilience"
	"github.com/kbukum/capsule/validation"
)

// Config is the full capsule configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Execution ExecutionConfig            `yaml:"execution" mapstructure:"execution"`
	Context   ContextConfig              `yaml:"context" mapstructure:"context"`
	Tracing   observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metastore MetastoreConfig            `yaml:"metastore" mapstructure:"metastore"`
	Status    StatusConfig               `yaml:"status" mapstructure:"status"`
}

// ExecutionConfig drives the workflow compiler and the local engine.
type ExecutionConfig struct {
	// ScratchRoot is the parent of per-execution temporary directories.
	ScratchRoot string `yaml:"scratch_root" mapstructure:"scratch_root" validate:"required"`
	// Workers bounds the number of jobs running at once.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
	// Timeout is the per-workflow timeout. Zero disables it.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	// KeepTemporaries disables temporary cleanup (debugging aid).
	KeepTemporaries bool `yaml:"keep_temporaries" mapstructure:"keep_temporaries"`
	// PropagateFailures fails dependents of a failed job immediately. When
	// false they stay waiting.
	PropagateFailures *bool `yaml:"propagate_failures" mapstructure:"propagate_failures"`
	// DirectoryJobs emits one directory-creation job per group.
	DirectoryJobs bool                   `yaml:"directory_jobs" mapstructure:"directory_jobs"`
	Retry         resilience.RetryPolicy `yaml:"retry" mapstructure:"retry"`
}

// ShouldPropagateFailures reports the effective failure propagation policy.
func (c *ExecutionConfig) ShouldPropagateFailures() bool {
	return c.PropagateFailures == nil || *c.PropagateFailures
}

// ApplyDefaults applies default values.
func (c *ExecutionConfig) ApplyDefaults() {
	if c.ScratchRoot == "" {
		c.ScratchRoot = filepath.Join(os.TempDir(), "capsule")
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	c.Retry.ApplyDefaults()
}

// PathEntry is one library search path entry.
type PathEntry struct {
	Path   string `yaml:"path" mapstructure:"path" validate:"required"`
	Append bool   `yaml:"append" mapstructure:"append"`
}

// ContextConfig is the configuration-file form of an execution context.
type ContextConfig struct {
	// LibraryPathVar names the search path variable (LD_LIBRARY_PATH by default).
	LibraryPathVar string            `yaml:"library_path_var" mapstructure:"library_path_var"`
	LibraryPath    []PathEntry       `yaml:"library_path" mapstructure:"library_path" validate:"dive"`
	Env            map[string]string `yaml:"env" mapstructure:"env"`
	// Tools holds opaque per-tool settings keyed by tool name (fsl, spm, ...).
	Tools map[string]map[string]any `yaml:"tools" mapstructure:"tools"`
	// TransferRoots lists directories whose paths need upload/download for
	// remote execution.
	TransferRoots []string `yaml:"transfer_roots" mapstructure:"transfer_roots"`
}

// ApplyDefaults applies default values.
func (c *ContextConfig) ApplyDefaults() {
	if c.LibraryPathVar == "" {
		c.LibraryPathVar = "LD_LIBRARY_PATH"
	}
}

// MetastoreConfig selects the execution metadata store.
type MetastoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" mapstructure:"path" validate:"required_if=Driver sqlite"`
}

// ApplyDefaults applies default values.
func (c *MetastoreConfig) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
}

// StatusConfig configures the read-only status API.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr" validate:"required_if=Enabled true"`
}

// ApplyDefaults applies default values.
func (c *StatusConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8089"
	}
}

// ApplyDefaults applies defaults to every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Execution.ApplyDefaults()
	c.Context.ApplyDefaults()
	c.Metastore.ApplyDefaults()
	c.Status.ApplyDefaults()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = c.Version
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = c.Environment
	}
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
