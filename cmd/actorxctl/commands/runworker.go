package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/internal/guestrt"
	"github.com/actorxio/actorx/internal/workerpool"
	"github.com/actorxio/actorx/sign"
	"github.com/actorxio/actorx/wire"
)

var (
	runWorkerSocket       string
	runWorkerMemLimit     uint64
	runWorkerCacheDir     string
	runWorkerSoftCap      int
	runWorkerHardCap      int
	runWorkerInvokeBudget uint64
)

var runWorkerCmd = &cobra.Command{
	Use:    "run-worker",
	Short:  "Worker-process entrypoint spawned by the host's worker pool",
	Hidden: true,
	Long: `run-worker is not meant to be invoked by operators directly:
it is the child process the host's worker pool execs per guest
registration, speaking the binary handshake and frame protocol over
--socket.`,
	RunE: runRunWorker,
}

func init() {
	runWorkerCmd.Flags().StringVar(&runWorkerSocket, "socket", "", "unix-domain socket path to connect back to the host on (required)")
	runWorkerCmd.Flags().Uint64Var(&runWorkerMemLimit, "memory-limit-bytes", 0, "guest linear memory cap in bytes (0 = wasm hard maximum)")
	runWorkerCmd.Flags().StringVar(&runWorkerCacheDir, "cache-dir", "", "directory for the persistent compiled-module cache")
	runWorkerCmd.Flags().IntVar(&runWorkerSoftCap, "soft-cap", 100, "live-instance count that triggers anticipatory preloading")
	runWorkerCmd.Flags().IntVar(&runWorkerHardCap, "hard-cap", 128, "live-instance ceiling forcing a swap to a preloaded instance")
	runWorkerCmd.Flags().Uint64Var(&runWorkerInvokeBudget, "default-gas", 1_000_000, "gas balance granted to an invocation whose Call frame carries zero gas")
	_ = runWorkerCmd.MarkFlagRequired("socket")
}

func runRunWorker(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	conn, err := net.Dial("unix", runWorkerSocket)
	if err != nil {
		return fmt.Errorf("run-worker: dialing host socket %s: %w", runWorkerSocket, err)
	}
	defer conn.Close()

	source, err := workerpool.ReadBinaryHandshake(conn)
	if err != nil {
		return fmt.Errorf("run-worker: reading binary handshake: %w", err)
	}

	wasmBytes, err := loadSource(source)
	if err != nil {
		return fmt.Errorf("run-worker: loading guest binary: %w", err)
	}

	md, err := sign.Verify(wasmBytes)
	if err != nil {
		return fmt.Errorf("run-worker: verifying guest binary's signature: %w", err)
	}

	if err := workerpool.WriteMetadataHandshake(conn, md); err != nil {
		return fmt.Errorf("run-worker: writing metadata handshake: %w", err)
	}

	var memLimit *uint64
	if runWorkerMemLimit > 0 {
		memLimit = &runWorkerMemLimit
	}
	rt, err := guestrt.NewRuntime(ctx, memLimit, runWorkerCacheDir, func(id actorid.ActorID, line string) {
		log.Printf("guest %s: %s", id, line)
	})
	if err != nil {
		return fmt.Errorf("run-worker: constructing guest runtime: %w", err)
	}
	defer rt.Close(ctx)

	compiled, err := rt.Compile(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("run-worker: compiling guest binary: %w", err)
	}

	w := newWorker(ctx, rt, compiled, conn, actorid.NewSingleton(md.RegID))
	return w.run()
}

func loadSource(source workerpool.BinarySource) ([]byte, error) {
	if source.Path != "" {
		return os.ReadFile(source.Path)
	}
	return source.Bytes, nil
}

// worker demultiplexes the frame stream from the host into one
// goroutine per open channel_id, each driving a guest Instance through
// the trampoline: the worker side of the wire, the mirror image of the
// host's WorkerProcess reader loop.
type worker struct {
	ctx      context.Context
	rt       *guestrt.Runtime
	compiled wazero.CompiledModule
	conn     net.Conn
	actorID  actorid.ActorID

	instances *guestrt.InstanceCount
	predictor *guestrt.Predictor
	instSeq   atomic.Uint64

	mu       sync.Mutex
	writeMu  sync.Mutex
	channels map[uint64]chan wire.Operation
}

func newWorker(ctx context.Context, rt *guestrt.Runtime, compiled wazero.CompiledModule, conn net.Conn, actorID actorid.ActorID) *worker {
	w := &worker{
		ctx:      ctx,
		rt:       rt,
		compiled: compiled,
		conn:     conn,
		actorID:  actorID,
		channels: make(map[uint64]chan wire.Operation),
	}
	w.predictor = guestrt.NewPredictor(w.freshInstance)
	w.instances = guestrt.NewInstanceCount(runWorkerSoftCap, runWorkerHardCap, func() {
		w.predictor.Warm(ctx)
	})
	return w
}

func (w *worker) freshInstance(ctx context.Context) (*guestrt.Instance, error) {
	return w.rt.Instantiate(ctx, w.compiled, fmt.Sprintf("inst-%d", w.instSeq.Add(1)))
}

// readIdleTimeout bounds how long the worker blocks waiting for the
// next frame before re-checking the connection: a quiet host is idle,
// not dead, so a timed-out wait just re-arms.
const readIdleTimeout = 5 * time.Second

func (w *worker) run() error {
	br := bufio.NewReader(w.conn)
	for {
		// Peek before decoding so an idle-timeout can never split a
		// frame mid-read.
		_ = w.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		if _, err := br.Peek(1); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("run-worker: waiting for frame: %w", err)
		}
		_ = w.conn.SetReadDeadline(time.Time{})

		f, err := wire.DecodeFrame(br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("run-worker: decoding frame: %w", err)
		}

		w.mu.Lock()
		reply, open := w.channels[f.ChannelID]
		w.mu.Unlock()

		if open {
			// A reply to a mid-turn nested call this channel's goroutine
			// is waiting on.
			select {
			case reply <- f.Op:
			default:
				log.Printf("run-worker: channel %d was not draining a reply, dropping frame", f.ChannelID)
			}
			continue
		}

		// A fresh invocation: own it on a new goroutine so concurrent
		// channels never block one another.
		replyCh := make(chan wire.Operation, 1)
		w.mu.Lock()
		w.channels[f.ChannelID] = replyCh
		w.mu.Unlock()

		go w.serveChannel(f.ChannelID, f.Op, f.Gas, replyCh)
	}
}

// serveChannel drives one logical invocation: it picks an instance
// (the predictor's warmed replacement once past the hard cap, a fresh
// instantiation otherwise), pumps the trampoline until the guest's
// final return, and writes that back tagged with the remaining gas.
// An instance that traps on its first turn is re-rolled onto a fresh
// one exactly once before the failure is surfaced.
func (w *worker) serveChannel(channelID uint64, initial wire.Operation, gasLimit uint64, replyCh chan wire.Operation) {
	defer func() {
		w.mu.Lock()
		delete(w.channels, channelID)
		w.mu.Unlock()
	}()

	if gasLimit == 0 {
		gasLimit = runWorkerInvokeBudget
	}

	mustSwap := w.instances.Acquire()
	defer w.instances.Release()

	var inst *guestrt.Instance
	if mustSwap {
		if r, ok := w.predictor.TakeReplacement(); ok {
			inst = r
		}
	}
	if inst == nil {
		var err error
		inst, err = w.freshInstance(w.ctx)
		if err != nil {
			w.sendResult(channelID, 0, wire.ReturnErr(errs.From(err)))
			return
		}
	}

	ctx := guestrt.WithPrintActor(w.ctx, w.actorID)
	runTurn := func(ctx context.Context, inst *guestrt.Instance) (wire.Operation, error) {
		return guestrt.RunTurn(ctx, initial, guestrt.InstanceStep(inst, gasLimit),
			func(ctx context.Context, call wire.Operation) (wire.Operation, error) {
				if err := w.sendFrame(channelID, inst.Meter().Remaining(), call); err != nil {
					return wire.Operation{}, err
				}
				select {
				case reply := <-replyCh:
					return reply, nil
				case <-ctx.Done():
					return wire.Operation{}, ctx.Err()
				}
			})
	}

	result, served, err := guestrt.RerollOnce(ctx, inst, runTurn, w.freshInstance)
	var remaining uint64
	if served != nil {
		remaining = served.Meter().Remaining()
		defer served.Close(w.ctx)
	}
	if err != nil {
		result = wire.ReturnErr(errs.From(err))
	}
	w.sendResult(channelID, remaining, result)
}

func (w *worker) sendResult(channelID uint64, gasBalance uint64, op wire.Operation) {
	if err := w.sendFrame(channelID, gasBalance, op); err != nil {
		log.Printf("run-worker: writing result for channel %d: %v", channelID, err)
	}
}

func (w *worker) sendFrame(channelID uint64, gasBalance uint64, op wire.Operation) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return wire.EncodeFrame(w.conn, wire.Frame{ChannelID: channelID, Gas: gasBalance, Op: op})
}
