package workerpool

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/config"
)

// SpawnConfig describes how to launch one worker process.
type SpawnConfig struct {
	// WorkerBinaryPath is the actorxctl binary to exec with "run-worker".
	WorkerBinaryPath string
	// Source is the guest binary handed to the worker over the
	// handshake socket.
	Source BinarySource
	// InvokeTimeout bounds how long a Channel.Recv waits before
	// surfacing ChannelReceivingTimeout.
	InvokeTimeout time.Duration

	// MemoryLimitBytes caps the worker's guest linear memory; nil
	// leaves the wasm hard maximum.
	MemoryLimitBytes *uint64
	// CompilationCacheDir, if non-empty, is where the worker persists
	// compiled-module artifacts across launches.
	CompilationCacheDir string
	// InstanceSoftCap/InstanceHardCap bound the worker's live guest
	// instances; zero keeps the worker's own defaults.
	InstanceSoftCap int
	InstanceHardCap int
}

// NewSpawnConfig builds a SpawnConfig for source from the runtime
// options: the worker binary path override, memory cap, compilation
// cache directory, invoke timeout, and instance caps all carry over.
// binaryPath is the default worker executable, used unless the options
// override it.
func NewSpawnConfig(opts config.Config, binaryPath string, source BinarySource) SpawnConfig {
	if opts.WorkerBinaryPathOverride != nil {
		binaryPath = *opts.WorkerBinaryPathOverride
	}
	return SpawnConfig{
		WorkerBinaryPath:    binaryPath,
		Source:              source,
		InvokeTimeout:       opts.InvokeTimeout,
		MemoryLimitBytes:    opts.MemoryLimitBytes,
		CompilationCacheDir: opts.WorkerCompilationCacheDir,
		InstanceSoftCap:     opts.InstanceSoftCap,
		InstanceHardCap:     opts.InstanceHardCap,
	}
}

// args renders the run-worker command line for this config.
func (cfg SpawnConfig) args(sockPath string) []string {
	args := []string{"run-worker", "--socket", sockPath}
	if cfg.MemoryLimitBytes != nil {
		args = append(args, "--memory-limit-bytes", fmt.Sprintf("%d", *cfg.MemoryLimitBytes))
	}
	if cfg.CompilationCacheDir != "" {
		args = append(args, "--cache-dir", cfg.CompilationCacheDir)
	}
	if cfg.InstanceSoftCap > 0 {
		args = append(args, "--soft-cap", fmt.Sprintf("%d", cfg.InstanceSoftCap))
	}
	if cfg.InstanceHardCap > 0 {
		args = append(args, "--hard-cap", fmt.Sprintf("%d", cfg.InstanceHardCap))
	}
	return args
}

// Spawn starts a worker process for regID: it listens on a fresh
// unix-domain socket, execs WorkerBinaryPath as a "run-worker" child
// pointed at that socket, accepts the resulting connection, and runs
// the binary-then-Metadata handshake over it.
func Spawn(ctx context.Context, regID actorid.RegistrationID, cfg SpawnConfig) (*WorkerProcess, error) {
	sockPath := filepath.Join(os.TempDir(), fmt.Sprintf("actorx-worker-%s-%d.sock", regID, time.Now().UnixNano()))

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("workerpool: listening for worker handshake: %w", err)
	}
	defer os.Remove(sockPath)

	cmd := exec.CommandContext(ctx, cfg.WorkerBinaryPath, cfg.args(sockPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		ln.Close()
		return nil, fmt.Errorf("workerpool: starting worker process: %w", err)
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		acceptCh <- acceptResult{conn: conn, err: err}
	}()

	select {
	case res := <-acceptCh:
		ln.Close()
		if res.err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("workerpool: accepting worker handshake connection: %w", res.err)
		}
		return finishHandshake(regID, cmd, res.conn, cfg)
	case <-ctx.Done():
		ln.Close()
		_ = cmd.Process.Kill()
		return nil, ctx.Err()
	}
}

func finishHandshake(regID actorid.RegistrationID, cmd *exec.Cmd, conn net.Conn, cfg SpawnConfig) (*WorkerProcess, error) {
	if err := sendBinaryHandshake(conn, cfg.Source); err != nil {
		conn.Close()
		_ = cmd.Process.Kill()
		return nil, err
	}
	md, err := readMetadataHandshake(conn)
	if err != nil {
		conn.Close()
		_ = cmd.Process.Kill()
		return nil, err
	}
	return newWorkerProcess(regID, conn, cmd, cfg.InvokeTimeout, md), nil
}

// Pool owns one WorkerProcess per registered guest binary, starting
// them lazily. Concurrent cold starts for the same registration are
// deduped behind a singleflight.Group, so a burst of first calls
// spawns one process, not one per caller.
type Pool struct {
	spawn func(ctx context.Context, regID actorid.RegistrationID) (*WorkerProcess, error)

	mu    sync.Mutex
	procs map[actorid.RegistrationID]*WorkerProcess
	group singleflight.Group
}

// NewPool constructs a Pool that cold-starts workers via spawn.
func NewPool(spawn func(ctx context.Context, regID actorid.RegistrationID) (*WorkerProcess, error)) *Pool {
	return &Pool{
		spawn: spawn,
		procs: make(map[actorid.RegistrationID]*WorkerProcess),
	}
}

// Get returns the live WorkerProcess for regID, spawning one if none
// exists yet or the previous one has crashed. Concurrent Get calls for
// the same regID share a single in-flight spawn.
func (p *Pool) Get(ctx context.Context, regID actorid.RegistrationID) (*WorkerProcess, error) {
	if wp, ok := p.live(regID); ok {
		return wp, nil
	}

	v, err, _ := p.group.Do(regID.String(), func() (interface{}, error) {
		if wp, ok := p.live(regID); ok {
			return wp, nil
		}
		wp, err := p.spawn(ctx, regID)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.procs[regID] = wp
		p.mu.Unlock()
		return wp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*WorkerProcess), nil
}

func (p *Pool) live(regID actorid.RegistrationID) (*WorkerProcess, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wp, ok := p.procs[regID]
	if !ok || wp.Closed() {
		return nil, false
	}
	return wp, true
}

// Evict forcibly closes and forgets the WorkerProcess for regID, if
// any.
func (p *Pool) Evict(regID actorid.RegistrationID) {
	p.mu.Lock()
	wp, ok := p.procs[regID]
	delete(p.procs, regID)
	p.mu.Unlock()
	if ok {
		_ = wp.Close()
	}
}
