package adapter

import (
	"github.com/wippyai/wasm-component-ld/component"
	"github.com/wippyai/wasm-component-ld/errors"
	"github.com/wippyai/wasm-component-ld/wasm"
)

// Namespaces the built-in adapter family serves. Both spell the same
// historical system-call interface; some older toolchains emit the
// second.
const (
	NamespacePreview1 = "wasi_snapshot_preview1"
	NamespaceLegacy   = "wasi_legacy"
)

// ErrnoNosys is what every stubbed system call returns.
const ErrnoNosys = 52

// VariantMarkerSection names the custom section recording which
// built-in flavor a synthesized adapter is.
const VariantMarkerSection = "adapter-variant"

// Variant is a built-in adapter flavor.
type Variant int

const (
	VariantReactor Variant = iota
	VariantCommand
	VariantProxy
)

func (v Variant) String() string {
	switch v {
	case VariantCommand:
		return "command"
	case VariantProxy:
		return "proxy"
	default:
		return "reactor"
	}
}

// IsLegacy reports whether imports from the namespace are served by the
// built-in adapter family.
func IsLegacy(namespace string) bool {
	return namespace == NamespacePreview1 || namespace == NamespaceLegacy
}

// SelectVariant picks the built-in flavor for a linked module: proxy
// when requested, command when the module carries a _start entry,
// reactor otherwise.
func SelectVariant(main *wasm.CoreModule, proxy bool) Variant {
	if proxy {
		return VariantProxy
	}
	if main.HasExport("_start") {
		return VariantCommand
	}
	return VariantReactor
}

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
)

func p(types ...wasm.ValType) []wasm.ValType { return types }

type syscallSig struct {
	name   string
	params []wasm.ValType
}

// preview1Surface is the legacy system interface, alphabetical. Every
// call returns errno except proc_exit, which diverges.
var preview1Surface = []syscallSig{
	{"args_get", p(i32, i32)},
	{"args_sizes_get", p(i32, i32)},
	{"clock_res_get", p(i32, i32)},
	{"clock_time_get", p(i32, i64, i32)},
	{"environ_get", p(i32, i32)},
	{"environ_sizes_get", p(i32, i32)},
	{"fd_advise", p(i32, i64, i64, i32)},
	{"fd_allocate", p(i32, i64, i64)},
	{"fd_close", p(i32)},
	{"fd_datasync", p(i32)},
	{"fd_fdstat_get", p(i32, i32)},
	{"fd_fdstat_set_flags", p(i32, i32)},
	{"fd_fdstat_set_rights", p(i32, i64, i64)},
	{"fd_filestat_get", p(i32, i32)},
	{"fd_filestat_set_size", p(i32, i64)},
	{"fd_filestat_set_times", p(i32, i64, i64, i32)},
	{"fd_pread", p(i32, i32, i32, i64, i32)},
	{"fd_prestat_dir_name", p(i32, i32, i32)},
	{"fd_prestat_get", p(i32, i32)},
	{"fd_pwrite", p(i32, i32, i32, i64, i32)},
	{"fd_read", p(i32, i32, i32, i32)},
	{"fd_readdir", p(i32, i32, i32, i64, i32)},
	{"fd_renumber", p(i32, i32)},
	{"fd_seek", p(i32, i64, i32, i32)},
	{"fd_sync", p(i32)},
	{"fd_tell", p(i32, i32)},
	{"fd_write", p(i32, i32, i32, i32)},
	{"path_create_directory", p(i32, i32, i32)},
	{"path_filestat_get", p(i32, i32, i32, i32, i32)},
	{"path_filestat_set_times", p(i32, i32, i32, i32, i64, i64, i32)},
	{"path_link", p(i32, i32, i32, i32, i32, i32, i32)},
	{"path_open", p(i32, i32, i32, i32, i32, i64, i64, i32, i32)},
	{"path_readlink", p(i32, i32, i32, i32, i32, i32)},
	{"path_remove_directory", p(i32, i32, i32)},
	{"path_rename", p(i32, i32, i32, i32, i32, i32)},
	{"path_symlink", p(i32, i32, i32, i32, i32)},
	{"path_unlink_file", p(i32, i32, i32)},
	{"poll_oneoff", p(i32, i32, i32, i32)},
	{"proc_exit", p(i32)},
	{"proc_raise", p(i32)},
	{"random_get", p(i32, i32)},
	{"sched_yield", nil},
	{"sock_accept", p(i32, i32, i32)},
	{"sock_recv", p(i32, i32, i32, i32, i32, i32)},
	{"sock_send", p(i32, i32, i32, i32, i32)},
	{"sock_shutdown", p(i32, i32)},
}

// proxySurface is the subset reachable behind the proxy world: stdio,
// clocks, randomness and scheduling. No filesystem, no sockets.
var proxySurface = map[string]bool{
	"clock_res_get":     true,
	"clock_time_get":    true,
	"environ_get":       true,
	"environ_sizes_get": true,
	"fd_fdstat_get":     true,
	"fd_read":           true,
	"fd_write":          true,
	"poll_oneoff":       true,
	"proc_exit":         true,
	"random_get":        true,
	"sched_yield":       true,
}

// BuiltIn synthesizes the stub adapter serving one legacy namespace.
// The module imports nothing, so the component gains no hidden host
// dependencies; stubs sharing a signature share one function body. The
// flavor is recorded in a custom section for inspection.
func BuiltIn(namespace string, variant Variant) (component.AdapterModule, error) {
	mod := &wasm.Module{}
	errnoFuncs := make(map[uint32]uint32)

	addBody := func(tidx uint32, code []byte) uint32 {
		mod.Funcs = append(mod.Funcs, tidx)
		mod.Code = append(mod.Code, wasm.FuncBody{Code: code})
		return uint32(len(mod.Funcs) - 1)
	}

	for _, sc := range preview1Surface {
		if variant == VariantProxy && !proxySurface[sc.name] {
			continue
		}
		var fidx uint32
		if sc.name == "proc_exit" {
			fidx = addBody(mod.AddType(wasm.FuncType{Params: sc.params}),
				[]byte{wasm.OpUnreachable, wasm.OpEnd})
		} else {
			tidx := mod.AddType(wasm.FuncType{Params: sc.params, Results: []wasm.ValType{i32}})
			idx, ok := errnoFuncs[tidx]
			if !ok {
				// ErrnoNosys fits one SLEB128 byte.
				idx = addBody(tidx, []byte{wasm.OpI32Const, ErrnoNosys, wasm.OpEnd})
				errnoFuncs[tidx] = idx
			}
			fidx = idx
		}
		mod.Exports = append(mod.Exports, wasm.Export{Name: sc.name, Kind: wasm.KindFunc, Index: fidx})
	}

	if variant == VariantCommand {
		fidx := addBody(mod.AddType(wasm.FuncType{}), []byte{wasm.OpEnd})
		mod.Exports = append(mod.Exports, wasm.Export{Name: "_start", Kind: wasm.KindFunc, Index: fidx})
	}

	mod.Customs = append(mod.Customs, wasm.CustomSection{
		Name: VariantMarkerSection,
		Data: []byte(variant.String()),
	})

	raw := mod.Encode()
	info, err := wasm.Inspect(raw)
	if err != nil {
		return component.AdapterModule{}, errors.New(errors.PhaseResolve, errors.KindEncodeInternal).
			Element(namespace).
			Detail("synthesized adapter failed inspection").
			Cause(err).
			Build()
	}
	return component.AdapterModule{Namespace: namespace, Bytes: raw, Info: info}, nil
}
