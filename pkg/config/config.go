// Package config loads backend configuration from YAML files, .env files,
// PARFLOW_* environment variables and command-line flags.
package config

import (
	"fmt"
	"runtime"
	"strings"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/common/logging"
	"github.com/vnykmshr/parflow/pkg/common/validation"
	"github.com/vnykmshr/parflow/pkg/metrics"
)

const module = "config"

// Backend names accepted in Config.Backend.
const (
	BackendNative       = "native"
	BackendWorkStealing = "work-stealing"
)

var backendAliases = map[string]string{
	BackendNative:       BackendNative,
	BackendWorkStealing: BackendWorkStealing,
	"worksteal":         BackendWorkStealing,
	"ws":                BackendWorkStealing,
}

// CanonicalBackend maps a backend name to BackendNative or
// BackendWorkStealing. Case and surrounding space are ignored, and
// "worksteal" and "ws" are accepted for work-stealing.
func CanonicalBackend(name string) (string, bool) {
	canonical, ok := backendAliases[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// Config selects and sizes a backend.
type Config struct {
	// Backend is "native" or "work-stealing"; see CanonicalBackend for
	// accepted spellings.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Threads is the default thread count for pool sizing.
	Threads int `yaml:"threads" mapstructure:"threads"`

	// Capacity is the default inter-stage queue capacity.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`

	// Grain is the work-stealing split threshold; 0 picks one per call.
	Grain int `yaml:"grain" mapstructure:"grain"`

	// LockOSThread pins native workers to OS threads.
	LockOSThread bool `yaml:"lock_os_thread" mapstructure:"lock_os_thread"`

	Logging logging.Config `yaml:"logging" mapstructure:"logging"`
	Metrics metrics.Config `yaml:"metrics" mapstructure:"metrics"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		Backend:      BackendNative,
		Threads:      runtime.NumCPU(),
		Capacity:     64,
		LockOSThread: true,
		Metrics: metrics.Config{
			Namespace: metrics.DefaultNamespace,
		},
	}
	cfg.Logging.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills fields left at their zero value.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if canonical, ok := CanonicalBackend(c.Backend); ok {
		c.Backend = canonical
	}
	if c.Threads == 0 {
		c.Threads = d.Threads
	}
	if c.Capacity == 0 {
		c.Capacity = d.Capacity
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, ok := CanonicalBackend(c.Backend); !ok {
		return pferrors.NewValidationError(module, "backend", c.Backend, "unknown backend").
			WithHint(fmt.Sprintf("use %q or %q", BackendNative, BackendWorkStealing))
	}
	if err := validation.ValidatePositive(module, "threads", c.Threads); err != nil {
		return err
	}
	if err := validation.ValidatePositive(module, "capacity", c.Capacity); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "grain", c.Grain); err != nil {
		return err
	}
	return c.Logging.Validate()
}
