package component

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-component-ld/errors"
	"github.com/wippyai/wasm-component-ld/wasm"
)

func inspectModule(t *testing.T, m *wasm.Module) *wasm.CoreModule {
	t.Helper()
	cm, err := wasm.Inspect(m.Encode())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	return cm
}

// mainModule links against a host namespace and an adapter namespace
// and exports the canonical ABI surface a lifted export needs.
func mainModule(t *testing.T) *wasm.CoreModule {
	t.Helper()
	return inspectModule(t, &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "host-log", Kind: wasm.KindFunc, TypeIndex: 0},
			{Module: "wasi_snapshot_preview1", Name: "fd_write", Kind: wasm.KindFunc, TypeIndex: 1},
		},
		Funcs:    []uint32{2, 1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "add", Kind: wasm.KindFunc, Index: 2},
			{Name: "cabi_realloc", Kind: wasm.KindFunc, Index: 3},
			{Name: "memory", Kind: wasm.KindMemory, Index: 0},
		},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpEnd}},
			{Code: []byte{wasm.OpEnd}},
		},
	})
}

// adapterModule satisfies wasi_snapshot_preview1 by calling back into
// the env namespace.
func adapterModule(t *testing.T) AdapterModule {
	t.Helper()
	info := inspectModule(t, &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "host-log", Kind: wasm.KindFunc, TypeIndex: 0},
		},
		Funcs: []uint32{1},
		Exports: []wasm.Export{
			{Name: "fd_write", Kind: wasm.KindFunc, Index: 1},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	})
	return AdapterModule{Namespace: "wasi_snapshot_preview1", Bytes: info.Raw, Info: info}
}

func hostLogFunc() Func {
	return Func{
		Name: "host-log",
		Type: FuncType{Params: []Param{
			{Name: "ptr", Type: PrimValType{Type: PrimU32}},
			{Name: "len", Type: PrimValType{Type: PrimU32}},
		}},
		CoreSig: wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
	}
}

func addFunc() Func {
	return Func{
		Name: "add",
		Type: FuncType{
			Params: []Param{
				{Name: "a", Type: PrimValType{Type: PrimU32}},
				{Name: "b", Type: PrimValType{Type: PrimU32}},
			},
			Result: PrimValType{Type: PrimU32},
		},
		CoreSig: wasm.FuncType{
			Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
			Results: []wasm.ValType{wasm.ValI32},
		},
	}
}

func fullAssembly(t *testing.T) Assembly {
	t.Helper()
	return Assembly{
		Main:      mainModule(t),
		Adapters:  []AdapterModule{adapterModule(t)},
		Imports:   []InstanceImport{{Name: "env", Funcs: []Func{hostLogFunc()}}},
		Exports:   []Func{addFunc()},
		WorldText: []byte("world demo"),
	}
}

func TestEncodeFullComponent(t *testing.T) {
	asm := fullAssembly(t)
	out, err := Encode(asm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !IsComponent(out) {
		t.Fatal("output is not a component")
	}

	c, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// One instance type for env, one function type for add.
	if len(c.Types) != 2 {
		t.Fatalf("got %d types, want 2", len(c.Types))
	}
	it, ok := c.Types[0].(InstanceType)
	if !ok || len(it.Decls) != 2 {
		t.Fatalf("type 0 = %#v", c.Types[0])
	}
	if it.Decls[0].Kind != DeclType || it.Decls[1].Kind != DeclExport {
		t.Errorf("instance decls = %+v", it.Decls)
	}
	if exp := it.Decls[1].Export; exp.Name != "host-log" || exp.ExternKind != ExternFunc || exp.TypeIndex != 0 {
		t.Errorf("instance export decl = %+v", exp)
	}
	ft, ok := c.Types[1].(FuncType)
	if !ok || len(ft.Params) != 2 || ft.Result == nil {
		t.Fatalf("type 1 = %#v", c.Types[1])
	}
	if ft.Params[0].Name != "a" || ft.Params[0].Type != (PrimValType{Type: PrimU32}) {
		t.Errorf("param 0 = %+v", ft.Params[0])
	}

	if len(c.Imports) != 1 || c.Imports[0].Name != "env" ||
		c.Imports[0].Desc != (ExternDesc{Kind: ExternInstance, TypeIndex: 0}) {
		t.Errorf("imports = %+v", c.Imports)
	}

	// Import alias, then memory, realloc, and export aliases.
	wantAliases := []ParsedAlias{
		{Sort: SortFunc, Target: AliasExport, InstanceIndex: 0, Name: "host-log"},
		{Sort: SortCore, CoreSort: CoreSortMemory, Target: AliasCoreInstanceExport, InstanceIndex: 2, Name: "memory"},
		{Sort: SortCore, CoreSort: CoreSortFunc, Target: AliasCoreInstanceExport, InstanceIndex: 2, Name: "cabi_realloc"},
		{Sort: SortCore, CoreSort: CoreSortFunc, Target: AliasCoreInstanceExport, InstanceIndex: 2, Name: "add"},
	}
	if len(c.Aliases) != len(wantAliases) {
		t.Fatalf("got %d aliases, want %d", len(c.Aliases), len(wantAliases))
	}
	for i, want := range wantAliases {
		if c.Aliases[i] != want {
			t.Errorf("alias %d = %+v, want %+v", i, c.Aliases[i], want)
		}
	}

	if len(c.Canons) != 2 {
		t.Fatalf("got %d canons, want 2", len(c.Canons))
	}
	lower := c.Canons[0]
	if lower.Kind != CanonLower || lower.FuncIndex != 0 || len(lower.Options) != 0 {
		t.Errorf("lower = %+v", lower)
	}
	lift := c.Canons[1]
	if lift.Kind != CanonLift || lift.FuncIndex != 2 || lift.TypeIndex != 1 {
		t.Errorf("lift = %+v", lift)
	}
	if enc := lift.StringEncoding(); enc != CanonOptUTF8 {
		t.Errorf("lift encoding = 0x%02x", enc)
	}
	if idx, ok := lift.MemoryIndex(); !ok || idx != 0 {
		t.Errorf("lift memory = %d, %v", idx, ok)
	}
	if idx, ok := lift.ReallocIndex(); !ok || idx != 1 {
		t.Errorf("lift realloc = %d, %v", idx, ok)
	}

	if len(c.CoreModules) != 2 {
		t.Fatalf("got %d core modules, want 2", len(c.CoreModules))
	}
	if !bytes.Equal(c.CoreModules[0], asm.Main.Raw) {
		t.Error("main module bytes changed")
	}
	if !bytes.Equal(c.CoreModules[1], asm.Adapters[0].Bytes) {
		t.Error("adapter bytes changed")
	}

	if len(c.CoreInstances) != 3 {
		t.Fatalf("got %d core instances, want 3", len(c.CoreInstances))
	}
	shim := c.CoreInstances[0]
	if shim.Kind != CoreInstanceFromExports || len(shim.Exports) != 1 ||
		shim.Exports[0] != (CoreInstanceExport{Name: "host-log", Kind: CoreExportFunc, Index: 0}) {
		t.Errorf("shim = %+v", shim)
	}
	adapter := c.CoreInstances[1]
	if adapter.Kind != CoreInstanceInstantiate || adapter.ModuleIndex != 1 ||
		len(adapter.Args) != 1 || adapter.Args[0] != (CoreInstanceArg{Name: "env", InstanceIndex: 0}) {
		t.Errorf("adapter instance = %+v", adapter)
	}
	main := c.CoreInstances[2]
	if main.Kind != CoreInstanceInstantiate || main.ModuleIndex != 0 || len(main.Args) != 2 {
		t.Fatalf("main instance = %+v", main)
	}
	if main.Args[0] != (CoreInstanceArg{Name: "env", InstanceIndex: 0}) ||
		main.Args[1] != (CoreInstanceArg{Name: "wasi_snapshot_preview1", InstanceIndex: 1}) {
		t.Errorf("main args = %+v", main.Args)
	}

	if len(c.Exports) != 1 {
		t.Fatalf("got %d exports, want 1", len(c.Exports))
	}
	exp := c.Exports[0]
	if exp.Name != "add" || exp.Sort != SortFunc || exp.SortIndex != 1 || exp.Desc != nil {
		t.Errorf("export = %+v", exp)
	}

	data, ok := c.CustomSection(MetadataSectionName)
	if !ok || string(data) != "world demo" {
		t.Errorf("metadata = %q, %v", data, ok)
	}

	// The metadata section is the last section in the binary.
	tail := appendName(nil, MetadataSectionName)
	tail = append(tail, []byte("world demo")...)
	if !bytes.HasSuffix(out, sec(SectionCustom, tail...)) {
		t.Error("metadata section is not last")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	first, err := Encode(fullAssembly(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(fullAssembly(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("equal assemblies produced different bytes")
	}
}

func voidFunc(name string) Func {
	return Func{Name: name, Type: FuncType{}, CoreSig: wasm.FuncType{}}
}

// twoNamespaceModule imports one function from each of two namespaces.
func twoNamespaceModule(t *testing.T) *wasm.CoreModule {
	t.Helper()
	return inspectModule(t, &wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{
			{Module: "zeta", Name: "f", Kind: wasm.KindFunc, TypeIndex: 0},
			{Module: "alpha", Name: "g", Kind: wasm.KindFunc, TypeIndex: 0},
		},
	})
}

func TestEncodeSortsNamespaces(t *testing.T) {
	asm := Assembly{
		Main: twoNamespaceModule(t),
		Imports: []InstanceImport{
			{Name: "zeta", Funcs: []Func{voidFunc("f")}},
			{Name: "alpha", Funcs: []Func{voidFunc("g")}},
		},
	}
	out, err := Encode(asm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if c.Imports[0].Name != "alpha" || c.Imports[1].Name != "zeta" {
		t.Errorf("namespaces not sorted: %+v", c.Imports)
	}
	if c.Aliases[0].Name != "g" || c.Aliases[1].Name != "f" {
		t.Errorf("aliases not in namespace order: %+v", c.Aliases)
	}
	main := c.CoreInstances[2]
	if main.Args[0].Name != "alpha" || main.Args[0].InstanceIndex != 0 ||
		main.Args[1].Name != "zeta" || main.Args[1].InstanceIndex != 1 {
		t.Errorf("main args = %+v", main.Args)
	}

	reversed := Assembly{
		Main: twoNamespaceModule(t),
		Imports: []InstanceImport{
			{Name: "alpha", Funcs: []Func{voidFunc("g")}},
			{Name: "zeta", Funcs: []Func{voidFunc("f")}},
		},
	}
	other, err := Encode(reversed)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out, other) {
		t.Error("input order leaked into the binary")
	}
}

func TestEncodeNoAdapters(t *testing.T) {
	main := inspectModule(t, &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "run", Kind: wasm.KindFunc, Index: 0}},
		Code:    []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	})
	out, err := Encode(Assembly{Main: main, Exports: []Func{voidFunc("run")}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(c.CoreModules) != 1 {
		t.Errorf("got %d embedded modules, want 1", len(c.CoreModules))
	}
	if len(c.Imports) != 0 {
		t.Errorf("unexpected imports: %+v", c.Imports)
	}
	if len(c.CoreInstances) != 1 || c.CoreInstances[0].Kind != CoreInstanceInstantiate {
		t.Fatalf("instances = %+v", c.CoreInstances)
	}
	if len(c.Canons) != 1 || c.Canons[0].Kind != CanonLift || c.Canons[0].FuncIndex != 0 {
		t.Errorf("canons = %+v", c.Canons)
	}
	if len(c.Canons[0].Options) != 1 || c.Canons[0].Options[0].Kind != CanonOptUTF8 {
		t.Errorf("lift options = %+v", c.Canons[0].Options)
	}
	if len(c.Exports) != 1 || c.Exports[0].SortIndex != 0 {
		t.Errorf("exports = %+v", c.Exports)
	}
	if _, ok := c.CustomSection(MetadataSectionName); ok {
		t.Error("unexpected metadata section")
	}
}

func TestEncodeSupersetImports(t *testing.T) {
	asm := Assembly{
		Main: twoNamespaceModule(t),
		Imports: []InstanceImport{
			{Name: "zeta", Funcs: []Func{voidFunc("f"), voidFunc("unused")}},
			{Name: "alpha", Funcs: []Func{voidFunc("g")}},
		},
	}
	out, err := Encode(asm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// The zeta shim carries every declared function, used or not.
	zeta := c.CoreInstances[1]
	if len(zeta.Exports) != 2 {
		t.Errorf("zeta shim = %+v", zeta.Exports)
	}
}

func TestEncodeUnresolvedImport(t *testing.T) {
	asm := Assembly{
		Main:    twoNamespaceModule(t),
		Imports: []InstanceImport{{Name: "alpha", Funcs: []Func{voidFunc("g")}}},
	}
	_, err := Encode(asm)
	if err == nil {
		t.Fatal("expected error")
	}
	var unresolved *errors.UnresolvedImportsError
	if !stderrors.As(err, &unresolved) {
		t.Fatalf("error type %T: %v", err, err)
	}
	if len(unresolved.Imports) != 1 || unresolved.Imports[0].Namespace != "zeta" ||
		unresolved.Imports[0].Function != "f" {
		t.Errorf("unresolved = %+v", unresolved.Imports)
	}
}

func TestEncodeImportTypeMismatch(t *testing.T) {
	badLog := hostLogFunc()
	badLog.CoreSig = wasm.FuncType{}
	asm := fullAssembly(t)
	asm.Imports = []InstanceImport{{Name: "env", Funcs: []Func{badLog}}}

	_, err := Encode(asm)
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindTypeMismatch {
		t.Fatalf("error = %v", err)
	}
	if e.Element != "env#host-log" {
		t.Errorf("element = %q", e.Element)
	}
}

func TestEncodeExportMissing(t *testing.T) {
	asm := fullAssembly(t)
	asm.Exports = append(asm.Exports, voidFunc("nope"))

	_, err := Encode(asm)
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindTypeMismatch {
		t.Fatalf("error = %v", err)
	}
	if e.Element != "nope" || e.CoreType != "absent" {
		t.Errorf("error = %+v", e)
	}
}

func TestEncodeExportSignatureMismatch(t *testing.T) {
	bad := addFunc()
	bad.CoreSig = wasm.FuncType{}
	asm := fullAssembly(t)
	asm.Exports = []Func{bad}

	_, err := Encode(asm)
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindTypeMismatch || e.Element != "add" {
		t.Fatalf("error = %v", err)
	}
}

func TestEncodeNonFunctionImport(t *testing.T) {
	main := inspectModule(t, &wasm.Module{
		Imports: []wasm.Import{
			{Module: "env", Name: "memory", Kind: wasm.KindMemory, Memory: wasm.MemoryType{Limits: wasm.Limits{Min: 1}}},
		},
	})
	_, err := Encode(Assembly{Main: main})
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindUnresolvedImport {
		t.Fatalf("error = %v", err)
	}
	if e.Element != "env#memory" {
		t.Errorf("element = %q", e.Element)
	}
}

func TestEncodeAdapterImportUnresolved(t *testing.T) {
	asm := fullAssembly(t)
	asm.Imports = nil
	_, err := Encode(asm)
	if err == nil {
		t.Fatal("expected error")
	}
	var unresolved *errors.UnresolvedImportsError
	if !stderrors.As(err, &unresolved) {
		t.Fatalf("error type %T: %v", err, err)
	}
	if unresolved.Imports[0].Namespace != "env" {
		t.Errorf("unresolved = %+v", unresolved.Imports)
	}
}

func TestEncodeDuplicateNamespace(t *testing.T) {
	asm := Assembly{
		Main: inspectModule(t, &wasm.Module{}),
		Imports: []InstanceImport{
			{Name: "env"},
			{Name: "env"},
		},
	}
	_, err := Encode(asm)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindEncodeInternal {
		t.Fatalf("error = %v", err)
	}
}

func TestEncodeSkipValidation(t *testing.T) {
	asm := fullAssembly(t)
	asm.SkipValidation = true
	out, err := Encode(asm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	checked, err := Encode(fullAssembly(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out, checked) {
		t.Error("self-check changed the output")
	}
}

func TestEncodeNilMain(t *testing.T) {
	_, err := Encode(Assembly{})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindEncodeInternal {
		t.Fatalf("error = %v", err)
	}
}
