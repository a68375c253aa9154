package workerpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/actorxio/actorx/config"
)

func TestNewSpawnConfigCarriesOptions(t *testing.T) {
	limit := uint64(64 << 20)
	opts := config.DefaultConfig()
	opts.MemoryLimitBytes = &limit
	opts.WorkerCompilationCacheDir = "/var/cache/actorx"

	cfg := NewSpawnConfig(opts, "/usr/local/bin/actorxctl", BinarySource{Path: "/tmp/g.wasm"})

	require.Equal(t, "/usr/local/bin/actorxctl", cfg.WorkerBinaryPath)
	require.Equal(t, opts.InvokeTimeout, cfg.InvokeTimeout)
	require.Equal(t, &limit, cfg.MemoryLimitBytes)
	require.Equal(t, "/var/cache/actorx", cfg.CompilationCacheDir)
	require.Equal(t, config.DefaultInstanceSoftCap, cfg.InstanceSoftCap)
	require.Equal(t, config.DefaultInstanceHardCap, cfg.InstanceHardCap)
}

func TestNewSpawnConfigHonorsBinaryOverride(t *testing.T) {
	override := "/opt/custom-worker"
	opts := config.DefaultConfig()
	opts.WorkerBinaryPathOverride = &override

	cfg := NewSpawnConfig(opts, "/usr/local/bin/actorxctl", BinarySource{})
	require.Equal(t, override, cfg.WorkerBinaryPath)
}

func TestSpawnConfigArgs(t *testing.T) {
	limit := uint64(1 << 20)
	cfg := SpawnConfig{
		MemoryLimitBytes:    &limit,
		CompilationCacheDir: "/var/cache/actorx",
		InstanceSoftCap:     10,
		InstanceHardCap:     12,
	}

	require.Equal(t, []string{
		"run-worker", "--socket", "/tmp/w.sock",
		"--memory-limit-bytes", "1048576",
		"--cache-dir", "/var/cache/actorx",
		"--soft-cap", "10",
		"--hard-cap", "12",
	}, cfg.args("/tmp/w.sock"))
}

func TestSpawnConfigArgsDefaultsAreOmitted(t *testing.T) {
	require.Equal(t,
		[]string{"run-worker", "--socket", "/tmp/w.sock"},
		SpawnConfig{}.args("/tmp/w.sock"))
}
