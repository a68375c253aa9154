// Package config holds the runtime's recognized options: a plain
// struct with documented defaults, filled in by DefaultConfig and
// overridable field-by-field by the embedding application.
package config

import (
	"fmt"
	"time"
)

// Config is the core's tunable knob set. Every field has a documented
// default applied by DefaultConfig; callers construct one via
// DefaultConfig() and then override only what they need.
type Config struct {
	// MemoryLimitBytes caps a guest instance's linear memory. nil means
	// no cap beyond whatever the wasm runtime itself enforces.
	MemoryLimitBytes *uint64

	// InvokeTimeout bounds how long a host call waits for a worker's
	// reply on a channel before failing with ChannelReceivingTimeout.
	InvokeTimeout time.Duration

	// AutoDeactivateIdle is the Looped agent's idle ceiling before a
	// non-singleton instance is torn down. No code reads this field:
	// agent.NewLooped always uses agent.DefaultIdleTimeout (5s).
	AutoDeactivateIdle time.Duration

	// DeadlockWarnInterval is the calling-stack watchdog's log cadence
	// for a still-blocked outbound invoke. No code reads this field:
	// callstack.Tracker always uses callstack.WarnInterval (60s).
	DeadlockWarnInterval time.Duration

	// InstanceSoftCap is the live-instance count at which the
	// anticipatory preload predictor starts warming a replacement.
	InstanceSoftCap int

	// InstanceHardCap is the live-instance ceiling; past this, a new
	// invocation is served by the predictor's warmed replacement
	// instance (or a freshly instantiated one if none is ready) instead
	// of adding another instance.
	InstanceHardCap int

	// WorkerBinaryPathOverride, if set, replaces the default
	// `.actorx_worker_host.<N>` sibling-executable path used to spawn
	// worker processes.
	WorkerBinaryPathOverride *string

	// WorkerCompilationCacheDir, if non-empty, is passed to each worker
	// process as the directory for its persistent compiled-module
	// cache. Empty means each worker recompiles every guest
	// binary it is handed from scratch.
	WorkerCompilationCacheDir string
}

// Defaults applied by DefaultConfig.
const (
	DefaultInvokeTimeout        = 15 * time.Second
	DefaultAutoDeactivateIdle   = 5 * time.Second
	DefaultDeadlockWarnInterval = 60 * time.Second
	DefaultInstanceSoftCap      = 100
	DefaultInstanceHardCap      = 128
)

// DefaultConfig returns a Config populated with the core's defaults.
func DefaultConfig() Config {
	return Config{
		MemoryLimitBytes:     nil,
		InvokeTimeout:        DefaultInvokeTimeout,
		AutoDeactivateIdle:   DefaultAutoDeactivateIdle,
		DeadlockWarnInterval: DefaultDeadlockWarnInterval,
		InstanceSoftCap:      DefaultInstanceSoftCap,
		InstanceHardCap:      DefaultInstanceHardCap,
	}
}

// Validate reports a non-nil error if the Config holds a value the
// rest of the core cannot reasonably operate with.
func (c Config) Validate() error {
	if c.InstanceSoftCap <= 0 {
		return fmt.Errorf("config: instance soft cap must be positive, got %d", c.InstanceSoftCap)
	}
	if c.InstanceHardCap < c.InstanceSoftCap {
		return fmt.Errorf("config: instance hard cap (%d) must be >= soft cap (%d)", c.InstanceHardCap, c.InstanceSoftCap)
	}
	if c.InvokeTimeout <= 0 {
		return fmt.Errorf("config: invoke timeout must be positive, got %s", c.InvokeTimeout)
	}
	return nil
}
