package gas

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// perCallCost is charged against the Meter on every guest function-call
// boundary. wazero has no built-in fuel/gas accounting, so a
// experimental.FunctionListener is the grounded mechanism for
// approximating "cost proportional to work done": every entry into a
// guest function burns a fixed unit of gas (returns are free), so a
// guest that loops through function calls exhausts its budget without
// instrumenting guest bytecode. A loop that makes no calls fires no
// listener and is bounded only by the wall-clock backstop in
// internal/guestrt.
const perCallCost = 1

// ListenerFactory returns a wazero experimental.FunctionListenerFactory
// that charges m for every function call made while the returned
// listeners are active. Install it on the wazero.RuntimeConfig used to
// construct the guest's runtime via
// experimental.WithFunctionListenerFactory.
func ListenerFactory(m *Meter) experimental.FunctionListenerFactory {
	return &meteringListenerFactory{meter: m}
}

type meteringListenerFactory struct {
	meter *Meter
}

func (f *meteringListenerFactory) NewFunctionListener(fnd api.FunctionDefinition) experimental.FunctionListener {
	return &meteringListener{meter: f.meter}
}

type meteringListener struct {
	meter *Meter
}

func (l *meteringListener) Before(ctx context.Context, mod api.Module, fnd api.FunctionDefinition, params []uint64, stack experimental.StackIterator) {
	l.meter.Consume(perCallCost)
}

func (l *meteringListener) After(ctx context.Context, mod api.Module, fnd api.FunctionDefinition, results []uint64) {
}

func (l *meteringListener) Abort(ctx context.Context, mod api.Module, fnd api.FunctionDefinition, err error) {
}
