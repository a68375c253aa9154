package workerpool

import (
	"context"
	"time"

	"github.com/actorxio/actorx/errs"
	"github.com/actorxio/actorx/wire"
)

// Channel is one open invocation channel against a WorkerProcess: the
// caller's Send/Recv pair, keyed internally by a channel_id allocated
// by OpenChannel.
type Channel struct {
	id            uint64
	wp            *WorkerProcess
	recvCh        chan frameResult
	invokeTimeout time.Duration
}

// OpenChannel allocates a fresh channel_id (wrapping on overflow,
// skipping any still-live id) and returns a Channel the caller uses to
// drive one logical invocation.
func (wp *WorkerProcess) OpenChannel() (*Channel, error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.closed {
		return nil, wp.closeErr
	}

	var id uint64
	for {
		id = wp.nextChannelID
		wp.nextChannelID++
		if _, taken := wp.channels[id]; !taken {
			break
		}
	}

	recvCh := make(chan frameResult, 1)
	wp.channels[id] = recvCh

	return &Channel{id: id, wp: wp, recvCh: recvCh, invokeTimeout: wp.invokeTimeout}, nil
}

// Send writes op onto the wire tagged with this channel's id and the
// guest's current gas balance.
func (c *Channel) Send(op wire.Operation, gasBalance uint64) error {
	return wire.EncodeFrame(c.wp.conn, wire.Frame{ChannelID: c.id, Gas: gasBalance, Op: op})
}

// Recv blocks for the next frame addressed to this channel, returning
// the Operation and the guest's remaining gas balance as of that frame.
// It fails with ChannelReceivingTimeout if the invoke timeout elapses
// first, or with WorkerCrashed if the worker exits while this channel
// is waiting.
func (c *Channel) Recv(ctx context.Context) (wire.Operation, uint64, error) {
	timer := time.NewTimer(c.invokeTimeout)
	defer timer.Stop()

	select {
	case r := <-c.recvCh:
		return r.op, r.gas, r.err
	case <-timer.C:
		return wire.Operation{}, 0, errs.ChannelReceivingTimeout
	case <-ctx.Done():
		return wire.Operation{}, 0, ctx.Err()
	}
}

// Close removes this channel from the worker's table. Any frame that
// later arrives for this id while it is unoccupied is logged and
// dropped by the reader loop. The table is keyed by id alone; since
// ids are handed out in increasing order, an id is only reused after
// the 64-bit counter wraps.
func (c *Channel) Close() {
	c.wp.mu.Lock()
	defer c.wp.mu.Unlock()
	delete(c.wp.channels, c.id)
}
