package guestrt

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// installPolyfills installs the wasm-bindgen placeholder imports a
// guest binary compiled with wasm-bindgen's externref support may
// request. Every one traps if actually invoked, since this guest ABI
// never uses externrefs.
func installPolyfills(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithGoModuleFunction(trap("__wbindgen_describe"),
			[]api.ValueType{api.ValueTypeI32}, nil).
		WithParameterNames("id").
		Export("__wbindgen_describe")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(trap("__wbindgen_throw"),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		WithParameterNames("ptr", "len").
		Export("__wbindgen_throw")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(trap("__wbindgen_externref_table_grow"),
			[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		WithParameterNames("delta").
		Export("__wbindgen_externref_table_grow")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(trap("__wbindgen_externref_table_set_null"),
			[]api.ValueType{api.ValueTypeI32}, nil).
		WithParameterNames("index").
		Export("__wbindgen_externref_table_set_null")
}

// trap returns a host function body that unconditionally panics,
// which wazero surfaces to the caller as the guest call failing —
// the practical equivalent of a wasm trap for a Go-implemented import.
func trap(name string) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		panic(fmt.Sprintf("guestrt: guest invoked unsupported wasm-bindgen import %q", name))
	}
}
