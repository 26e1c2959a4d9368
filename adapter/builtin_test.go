package adapter

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-component-ld/wasm"
)

func TestBuiltInReactorSurface(t *testing.T) {
	a, err := BuiltIn(NamespacePreview1, VariantReactor)
	if err != nil {
		t.Fatalf("BuiltIn: %v", err)
	}
	if a.Namespace != NamespacePreview1 {
		t.Errorf("namespace = %q", a.Namespace)
	}
	if got := len(a.Info.Imports()); got != 0 {
		t.Errorf("adapter has %d imports, want none", got)
	}

	for _, sc := range preview1Surface {
		if !a.Info.ExportsFunc(sc.name) {
			t.Errorf("missing export %q", sc.name)
		}
	}
	if a.Info.HasExport("_start") {
		t.Error("reactor exports _start")
	}

	sig, ok := a.Info.ExportedFuncType("fd_write")
	want := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	if !ok || !sig.Equal(want) {
		t.Errorf("fd_write sig = %s", sig.String())
	}
	exitSig, ok := a.Info.ExportedFuncType("proc_exit")
	if !ok || !exitSig.Equal(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}) {
		t.Errorf("proc_exit sig = %s", exitSig.String())
	}

	marker, ok := a.Info.CustomSection(VariantMarkerSection)
	if !ok || string(marker) != "reactor" {
		t.Errorf("variant marker = %q, %v", marker, ok)
	}

	// Stubs sharing a signature share one body.
	if funcs, exports := len(a.Info.Module.Funcs), len(a.Info.Module.Exports); funcs >= exports {
		t.Errorf("%d funcs for %d exports, expected sharing", funcs, exports)
	}
}

func TestBuiltInStubBodies(t *testing.T) {
	a, err := BuiltIn(NamespacePreview1, VariantReactor)
	if err != nil {
		t.Fatalf("BuiltIn: %v", err)
	}
	m := a.Info.Module

	body := func(name string) []byte {
		t.Helper()
		e, ok := m.ExportByName(name)
		if !ok || e.Kind != wasm.KindFunc {
			t.Fatalf("no func export %q", name)
		}
		return m.Code[e.Index].Code
	}

	if got := body("random_get"); !bytes.Equal(got, []byte{wasm.OpI32Const, ErrnoNosys, wasm.OpEnd}) {
		t.Errorf("random_get body = %#v", got)
	}
	if got := body("proc_exit"); !bytes.Equal(got, []byte{wasm.OpUnreachable, wasm.OpEnd}) {
		t.Errorf("proc_exit body = %#v", got)
	}
}

func TestBuiltInCommand(t *testing.T) {
	a, err := BuiltIn(NamespacePreview1, VariantCommand)
	if err != nil {
		t.Fatalf("BuiltIn: %v", err)
	}
	sig, ok := a.Info.ExportedFuncType("_start")
	if !ok || !sig.Equal(wasm.FuncType{}) {
		t.Errorf("_start sig = %s, %v", sig.String(), ok)
	}
	marker, _ := a.Info.CustomSection(VariantMarkerSection)
	if string(marker) != "command" {
		t.Errorf("variant marker = %q", marker)
	}
}

func TestBuiltInProxy(t *testing.T) {
	a, err := BuiltIn(NamespaceLegacy, VariantProxy)
	if err != nil {
		t.Fatalf("BuiltIn: %v", err)
	}
	if a.Namespace != NamespaceLegacy {
		t.Errorf("namespace = %q", a.Namespace)
	}

	for name := range proxySurface {
		if !a.Info.ExportsFunc(name) {
			t.Errorf("missing proxy export %q", name)
		}
	}
	for _, name := range []string{"path_open", "fd_seek", "sock_recv", "args_get", "_start"} {
		if a.Info.HasExport(name) {
			t.Errorf("proxy exports %q", name)
		}
	}
	marker, _ := a.Info.CustomSection(VariantMarkerSection)
	if string(marker) != "proxy" {
		t.Errorf("variant marker = %q", marker)
	}
}

func TestBuiltInDeterministic(t *testing.T) {
	for _, variant := range []Variant{VariantReactor, VariantCommand, VariantProxy} {
		first, err := BuiltIn(NamespacePreview1, variant)
		if err != nil {
			t.Fatalf("BuiltIn(%s): %v", variant, err)
		}
		second, err := BuiltIn(NamespacePreview1, variant)
		if err != nil {
			t.Fatalf("BuiltIn(%s): %v", variant, err)
		}
		if !bytes.Equal(first.Bytes, second.Bytes) {
			t.Errorf("%s synthesis is not deterministic", variant)
		}
	}
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name  string
		start bool
		proxy bool
		want  Variant
	}{
		{name: "reactor", want: VariantReactor},
		{name: "command", start: true, want: VariantCommand},
		{name: "proxy", proxy: true, want: VariantProxy},
		{name: "proxy wins over start", start: true, proxy: true, want: VariantProxy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &wasm.Module{
				Types: []wasm.FuncType{{}},
				Funcs: []uint32{0},
				Code:  []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
			}
			if tt.start {
				m.Exports = []wasm.Export{{Name: "_start", Kind: wasm.KindFunc, Index: 0}}
			}
			if got := SelectVariant(inspectModule(t, m), tt.proxy); got != tt.want {
				t.Errorf("SelectVariant() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVariantString(t *testing.T) {
	if VariantReactor.String() != "reactor" || VariantCommand.String() != "command" || VariantProxy.String() != "proxy" {
		t.Error("variant names changed")
	}
}

func TestIsLegacy(t *testing.T) {
	if !IsLegacy(NamespacePreview1) || !IsLegacy(NamespaceLegacy) {
		t.Error("legacy namespaces not recognized")
	}
	if IsLegacy("env") || IsLegacy("wasi_snapshot_preview2") {
		t.Error("non-legacy namespace recognized")
	}
}
