// Package guestrt is the worker-process guest driver: it compiles and
// instantiates guest WASM binaries with wazero, drives their
// four-export ABI, meters gas per turn, and enforces the soft/hard
// instance caps with anticipatory preloading.
package guestrt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/gas"
	"github.com/actorxio/actorx/wire"
)

const (
	wasmPageSize     = 64 * 1024
	wasmHardMaxPages = 65536
)

// PrintFunc receives one line of UTF-8 text written by a guest's
// env.print import, tagged with the actor that wrote it.
type PrintFunc func(id actorid.ActorID, line string)

// Runtime is the process-wide wazero.Runtime shared by every compiled
// module and instance in one worker process, plus the host imports
// every guest shares (env.print, the wasm-bindgen polyfill traps).
type Runtime struct {
	wz      wazero.Runtime
	print   PrintFunc
	modules *ModuleCache
}

// NewRuntime constructs a Runtime with its guest memory capped at
// memoryLimitBytes, rounded up to 64 KiB pages and clamped to the
// WebAssembly hard maximum of 65536 pages. A nil memoryLimitBytes
// means "no cap beyond the wasm hard maximum". If cacheDir is
// non-empty, compiled modules are persisted under it (keyed by a hash
// of the source) so a later launch of this worker binary reuses the
// cached artifact instead of recompiling the guest binary from
// scratch.
func NewRuntime(ctx context.Context, memoryLimitBytes *uint64, cacheDir string, print PrintFunc) (*Runtime, error) {
	pages := uint32(wasmHardMaxPages)
	if memoryLimitBytes != nil {
		p := (*memoryLimitBytes + wasmPageSize - 1) / wasmPageSize
		if p < uint64(wasmHardMaxPages) {
			pages = uint32(p)
		}
	}

	// CloseOnContextDone lets the gas backstop interrupt a guest body
	// that never yields (a flat spin loop crosses no call boundary the
	// metering listener could observe).
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)
	if cacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("guestrt: opening compilation cache at %q: %w", cacheDir, err)
		}
		cfg = cfg.WithCompilationCache(cache)
	}
	wz := wazero.NewRuntimeWithConfig(ctx, cfg)

	if print == nil {
		print = func(actorid.ActorID, string) {}
	}
	modules, err := NewModuleCache()
	if err != nil {
		_ = wz.Close(ctx)
		return nil, fmt.Errorf("guestrt: constructing module cache: %w", err)
	}
	r := &Runtime{wz: wz, print: print, modules: modules}

	if err := r.instantiateHostModule(ctx); err != nil {
		_ = wz.Close(ctx)
		return nil, fmt.Errorf("guestrt: installing host imports: %w", err)
	}
	return r, nil
}

// Close tears down the wazero runtime and every module/instance it
// owns.
func (r *Runtime) Close(ctx context.Context) error {
	return r.wz.Close(ctx)
}

// Compile compiles guest WASM bytes into a reusable CompiledModule.
// A binary this Runtime has already compiled is served from the
// in-process handle cache instead of recompiling.
func (r *Runtime) Compile(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, error) {
	hash := sha256.Sum256(wasmBytes)
	key := hex.EncodeToString(hash[:])
	if m, ok := r.modules.Get(key); ok {
		return m, nil
	}
	m, err := r.wz.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}
	r.modules.Set(key, m)
	return m, nil
}

// Instance is one live guest instantiation: its wazero api.Module,
// typed handles to the four guest exports, the ABI record address
// returned by init(), and a dedicated gas meter.
type Instance struct {
	mod api.Module

	init         api.Function
	initHandle   api.Function
	handle       api.Function
	finishHandle api.Function

	abiAddr uint32
	meter   *gas.Meter
}

const (
	exportInit         = "init"
	exportInitHandle   = "init_handle"
	exportHandle       = "handle"
	exportFinishHandle = "finish_handle"
)

// Instantiate instantiates compiled with a fresh gas meter (limit 0
// until the first Reset) and calls init() to learn the guest's ABI
// record address.
func (r *Runtime) Instantiate(ctx context.Context, compiled wazero.CompiledModule, name string) (*Instance, error) {
	meter := gas.NewMeter(0)
	gctx := context.WithValue(ctx, experimental.FunctionListenerFactoryKey{}, gas.ListenerFactory(meter))

	mod, err := r.wz.InstantiateModule(gctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("guestrt: instantiating guest module: %w", err)
	}

	inst := &Instance{mod: mod, meter: meter}
	for _, exp := range []struct {
		name string
		fn   *api.Function
	}{
		{exportInit, &inst.init},
		{exportInitHandle, &inst.initHandle},
		{exportHandle, &inst.handle},
		{exportFinishHandle, &inst.finishHandle},
	} {
		fn := mod.ExportedFunction(exp.name)
		if fn == nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("guestrt: guest module %q missing required export %q", name, exp.name)
		}
		*exp.fn = fn
	}

	results, err := inst.init.Call(ctx)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("guestrt: calling init(): %w", err)
	}
	inst.abiAddr = uint32(results[0])
	return inst, nil
}

// Close releases the instance's module (and its linear memory).
func (i *Instance) Close(ctx context.Context) error {
	if i.mod == nil {
		return nil
	}
	return i.mod.Close(ctx)
}

// Meter exposes the instance's gas meter, e.g. for a caller wanting to
// report remaining balance.
func (i *Instance) Meter() *gas.Meter { return i.meter }

// RunTurn drives one full handle() turn: it writes op into the ABI
// record and guest memory, calls init_handle/handle/finish_handle, and
// returns the Operation the guest wrote back. gasLimit rearms the
// meter before this turn; the balance is read back after handle()
// returns.
func (i *Instance) RunTurn(ctx context.Context, op wire.Operation, gasLimit uint64) (wire.Operation, error) {
	i.meter.Reset(gasLimit)

	flag, buf0, buf1 := wire.OperationToABIBuffers(op)

	if _, err := i.initHandle.Call(ctx, uint64(flag), uint64(len(buf0)), uint64(len(buf1))); err != nil {
		return wire.Operation{}, fmt.Errorf("guestrt: calling init_handle(): %w", err)
	}

	rec, err := i.readABIRecord()
	if err != nil {
		return wire.Operation{}, err
	}
	if len(buf0) > 0 && !i.mod.Memory().Write(rec.Data0, buf0) {
		return wire.Operation{}, fmt.Errorf("guestrt: writing buffer 0 out of guest memory bounds")
	}
	if len(buf1) > 0 && !i.mod.Memory().Write(rec.Data1, buf1) {
		return wire.Operation{}, fmt.Errorf("guestrt: writing buffer 1 out of guest memory bounds")
	}

	callErr := i.runHandle(ctx, gasLimit)

	if gasErr := i.meter.CheckErr(fmt.Sprintf("0x%x", i.abiAddr)); gasErr != nil {
		if callErr == nil {
			// handle() returned on its own before we noticed; release
			// its buffers. When the backstop closed the module mid-loop
			// there is nothing left to call.
			if _, err := i.finishHandle.Call(ctx); err != nil {
				return wire.Operation{}, fmt.Errorf("guestrt: calling finish_handle() after gas exhaustion: %w", err)
			}
		}
		i.meter.Reset(0)
		return wire.ReturnErr(gasErr.(*errs.CoreError)), nil
	}
	if callErr != nil {
		return wire.Operation{}, fmt.Errorf("guestrt: calling handle(): %w", callErr)
	}

	outRec, err := i.readABIRecord()
	if err != nil {
		return wire.Operation{}, err
	}
	outBuf0, ok := i.mod.Memory().Read(outRec.Data0, outRec.Len0)
	if !ok {
		return wire.Operation{}, fmt.Errorf("guestrt: reading result buffer 0 out of guest memory bounds")
	}
	var outBuf1 []byte
	if outRec.Len1 > 0 {
		outBuf1, ok = i.mod.Memory().Read(outRec.Data1, outRec.Len1)
		if !ok {
			return wire.Operation{}, fmt.Errorf("guestrt: reading result buffer 1 out of guest memory bounds")
		}
	}

	result, err := wire.ABIBuffersToOperation(outRec.Flag, outBuf0, outBuf1)
	if err != nil {
		return wire.Operation{}, err
	}

	if _, err := i.finishHandle.Call(ctx); err != nil {
		return wire.Operation{}, fmt.Errorf("guestrt: calling finish_handle(): %w", err)
	}

	return result, nil
}

// The metering listener only fires on function-call boundaries, so a
// guest body that spins in a flat loop would otherwise burn no gas and
// never return. The backstop converts the turn's gas budget into a
// wall-clock allowance (one gas unit = one microsecond, clamped); when
// it elapses the meter is force-exhausted and the in-flight call is
// interrupted via context cancellation.
const (
	gasUnitWallClock = time.Microsecond
	minTurnWallClock = 10 * time.Millisecond
	maxTurnWallClock = 10 * time.Second
)

func turnWallClock(gasLimit uint64) time.Duration {
	if gasLimit >= uint64(maxTurnWallClock/gasUnitWallClock) {
		return maxTurnWallClock
	}
	d := time.Duration(gasLimit) * gasUnitWallClock
	if d < minTurnWallClock {
		return minTurnWallClock
	}
	return d
}

// runHandle invokes the guest's handle() export under the wall-clock
// gas backstop. An error return with the meter exhausted means the
// backstop closed the module mid-execution; the instance is dead and
// must not be reused.
func (i *Instance) runHandle(ctx context.Context, gasLimit uint64) error {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		timer := time.NewTimer(turnWallClock(gasLimit))
		defer timer.Stop()
		select {
		case <-timer.C:
			i.meter.Exhaust()
			cancel()
		case <-stop:
		}
	}()

	_, err := i.handle.Call(callCtx)
	return err
}

func (i *Instance) readABIRecord() (wire.ABIRecord, error) {
	buf, ok := i.mod.Memory().Read(i.abiAddr, wire.ABIRecordSize)
	if !ok {
		return wire.ABIRecord{}, fmt.Errorf("guestrt: ABI record address 0x%x out of guest memory bounds", i.abiAddr)
	}
	rec, ok := wire.DecodeABIRecord(buf)
	if !ok {
		return wire.ABIRecord{}, fmt.Errorf("guestrt: truncated ABI record")
	}
	return rec, nil
}
