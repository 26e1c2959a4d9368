package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-component-ld/component"
	"github.com/wippyai/wasm-component-ld/wasm"
	"github.com/wippyai/wasm-component-ld/witmeta"
)

func buildComponent(t *testing.T) []byte {
	t.Helper()
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "host-log", Kind: wasm.KindFunc, TypeIndex: 0},
		},
		Funcs:    []uint32{1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "add", Kind: wasm.KindFunc, Index: 1},
			{Name: "memory", Kind: wasm.KindMemory, Index: 0},
		},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd}},
		},
	}
	core, err := wasm.Inspect(m.Encode())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	meta, err := witmeta.Resolve(core, nil, witmeta.Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if embedded, ok := witmeta.Embed(core, meta.WorldText); ok {
		core, err = wasm.Inspect(embedded)
		if err != nil {
			t.Fatalf("Inspect embedded: %v", err)
		}
	}
	out, err := component.Encode(component.Assembly{
		Main:           core,
		Imports:        meta.Imports,
		Exports:        meta.Exports,
		StringEncoding: meta.StringEncoding,
		WorldText:      meta.WorldText,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return out
}

func writeComponent(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.wasm")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write component: %v", err)
	}
	return path
}

func TestLoadReport(t *testing.T) {
	rep, err := loadReport(writeComponent(t, buildComponent(t)))
	if err != nil {
		t.Fatalf("loadReport: %v", err)
	}

	if len(rep.modules) != 1 {
		t.Fatalf("modules = %d, want 1", len(rep.modules))
	}
	mod := rep.modules[0]
	if len(mod.imports) != 1 || mod.imports[0] != "env.host-log (func)" {
		t.Errorf("module imports = %v", mod.imports)
	}
	hasExport := func(want string) bool {
		for _, e := range mod.exports {
			if e == want {
				return true
			}
		}
		return false
	}
	if !hasExport("add (func)") || !hasExport("memory (memory)") {
		t.Errorf("module exports = %v", mod.exports)
	}

	if len(rep.imports) != 1 || rep.imports[0] != "env" {
		t.Errorf("component imports = %v, want [env]", rep.imports)
	}
	if len(rep.exports) != 1 || rep.exports[0] != "add" {
		t.Errorf("component exports = %v, want [add]", rep.exports)
	}
	if rep.world == nil {
		t.Fatalf("embedded world not parsed")
	}
	if got := rep.exportSignature("add"); !strings.Contains(got, "func(") {
		t.Errorf("export signature = %q", got)
	}
	if sigs := rep.importInterface("env"); len(sigs) != 1 || !strings.Contains(sigs[0], "host-log") {
		t.Errorf("import interface = %v", sigs)
	}
}

func TestReportDump(t *testing.T) {
	rep, err := loadReport(writeComponent(t, buildComponent(t)))
	if err != nil {
		t.Fatalf("loadReport: %v", err)
	}

	out := rep.dump()
	for _, want := range []string{
		"Component:",
		"core module #0",
		"env.host-log (func)",
		"add: func(",
		"world:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestLoadReportRejectsCoreModule(t *testing.T) {
	raw := (&wasm.Module{}).Encode()
	_, err := loadReport(writeComponent(t, raw))
	if err == nil || !strings.Contains(err.Error(), "not a component") {
		t.Fatalf("error = %v, want not-a-component", err)
	}
}

func TestRowFilter(t *testing.T) {
	rep, err := loadReport(writeComponent(t, buildComponent(t)))
	if err != nil {
		t.Fatalf("loadReport: %v", err)
	}

	m := newInspectModel("app.wasm")
	m.rep = rep
	m.rows = buildRows(rep)
	m.applyFilter()
	if len(m.visible) != len(m.rows) {
		t.Fatalf("unfiltered visible = %d, want %d", len(m.visible), len(m.rows))
	}

	m.filter.SetValue("add")
	m.applyFilter()
	if len(m.visible) != 1 {
		t.Fatalf("filtered visible = %d, want 1", len(m.visible))
	}
	if got := m.rows[m.visible[0]].title; got != "export add" {
		t.Errorf("filtered row = %q", got)
	}
}
