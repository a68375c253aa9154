package guestrt

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/actorxio/actorx/actorid"
)

// printActorKey is the context key env.print uses to find which actor
// is currently executing, so a single shared host module can route
// output to the right log line without per-instance host modules.
type printActorKey struct{}

// WithPrintActor tags ctx with id for the duration of a guest call, so
// a nested env.print import call can attribute its output to the
// right actor.
func WithPrintActor(ctx context.Context, id actorid.ActorID) context.Context {
	return context.WithValue(ctx, printActorKey{}, id)
}

func printActorFromContext(ctx context.Context) actorid.ActorID {
	id, _ := ctx.Value(printActorKey{}).(actorid.ActorID)
	return id
}

// instantiateHostModule installs the "env" host module: the print
// import and the wasm-bindgen polyfill traps.
func (r *Runtime) instantiateHostModule(ctx context.Context) error {
	builder := r.wz.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(r.hostPrint),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		WithParameterNames("ptr", "len").
		Export("print")

	installPolyfills(builder)

	_, err := builder.Instantiate(ctx)
	return err
}

// hostPrint implements env.print(ptr, len): copy the (ptr, len) span
// out of guest memory and forward the UTF-8 text to the Runtime's
// sink.
func (r *Runtime) hostPrint(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, ln := uint32(stack[0]), uint32(stack[1])
	buf, ok := mod.Memory().Read(ptr, ln)
	if !ok {
		return
	}
	r.print(printActorFromContext(ctx), string(buf))
}
