package guestrt

import (
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/tetratelabs/wazero"
)

// ModuleCache caches compiled wazero modules keyed by a hash of their
// source bytes, so recompiling a guest binary this process has already
// seen is avoided. The filesystem-level artifact cache is a separate,
// cmd/actorxctl-level concern; this is the in-process handle cache in
// front of it.
type ModuleCache struct {
	rc *ristretto.Cache
}

// NewModuleCache constructs a ModuleCache sized for a modest number of
// distinct guest binaries per worker process.
func NewModuleCache() (*ModuleCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4 * 10,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ModuleCache{rc: rc}, nil
}

// Get returns the cached CompiledModule for hash, if present.
func (c *ModuleCache) Get(hash string) (wazero.CompiledModule, bool) {
	v, ok := c.rc.Get(hash)
	if !ok {
		return nil, false
	}
	m, ok := v.(wazero.CompiledModule)
	return m, ok
}

// Set caches m under hash.
func (c *ModuleCache) Set(hash string, m wazero.CompiledModule) {
	c.rc.Set(hash, m, 1)
	c.rc.Wait()
}

// InstanceCount tracks how many live guest instances exist for one
// worker process and enforces the soft/hard caps: reaching the soft
// cap fires onSoftCap so a replacement can start compiling in the
// background (see Predictor); past the hard cap the caller is told to
// swap in that replacement rather than spin up yet another instance.
type InstanceCount struct {
	mu      sync.Mutex
	live    int
	softCap int
	hardCap int

	onSoftCap func()
}

// NewInstanceCount constructs an InstanceCount with the given caps.
// onSoftCap may be nil.
func NewInstanceCount(softCap, hardCap int, onSoftCap func()) *InstanceCount {
	return &InstanceCount{softCap: softCap, hardCap: hardCap, onSoftCap: onSoftCap}
}

// Acquire records one more live instance and reports whether the
// caller has crossed the hard cap and must swap in a preloaded
// replacement instead of creating a genuinely new one.
func (c *InstanceCount) Acquire() (mustSwapReplacement bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live++
	if c.live == c.softCap && c.onSoftCap != nil {
		go c.onSoftCap()
	}
	return c.live > c.hardCap
}

// Release records one fewer live instance.
func (c *InstanceCount) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live > 0 {
		c.live--
	}
}

// Live returns the current live-instance count.
func (c *InstanceCount) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}
