package component

import (
	"bytes"
	"strings"
	"testing"
)

// sec frames a section payload the way the binary format does.
func sec(id byte, payload ...byte) []byte {
	out := []byte{id}
	out = appendLEB128(out, uint32(len(payload)))
	return append(out, payload...)
}

func componentBytes(sections ...[]byte) []byte {
	out := append([]byte{}, componentPreamble...)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func TestIsComponent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"component preamble", componentBytes(), true},
		{"core module preamble", []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, false},
		{"short", []byte{0x00, 0x61, 0x73}, false},
		{"empty", nil, false},
		{"wrong magic", []byte{0x01, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComponent(tt.data); got != tt.want {
				t.Errorf("IsComponent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{
			"too short",
			[]byte{0x00, 0x61},
			"too short",
		},
		{
			"core module preamble",
			[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
			"invalid component preamble",
		},
		{
			"unknown section",
			componentBytes(sec(0x0c)),
			"unknown section id 0x0c",
		},
		{
			"truncated payload",
			append(componentBytes(), SectionType, 0x05, 0x01),
			"read 5 payload bytes",
		},
		{
			"duplicate start",
			componentBytes(sec(SectionStart, 0x00, 0x00, 0x00), sec(SectionStart, 0x00, 0x00, 0x00)),
			"duplicate start section",
		},
		{
			"import bad extern kind",
			componentBytes(sec(SectionImport, 0x01, 0x00, 0x01, 'a', 0x06, 0x00)),
			"unknown extern kind 0x06",
		},
		{
			"import bad name kind",
			componentBytes(sec(SectionImport, 0x01, 0x02, 0x01, 'a', 0x05, 0x00)),
			"unknown import name kind 0x02",
		},
		{
			"export bad ascription",
			componentBytes(sec(SectionExport, 0x01, 0x00, 0x01, 'a', 0x01, 0x00, 0x02)),
			"invalid ascription presence byte 0x02",
		},
		{
			"alias bad target",
			componentBytes(sec(SectionAlias, 0x01, 0x01, 0x03)),
			"unknown alias target 0x03",
		},
		{
			"canon count two",
			componentBytes(sec(SectionCanon, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00)),
			"expected 1 canon definition",
		},
		{
			"custom bad utf8 name",
			componentBytes(sec(SectionCustom, 0x01, 0xff)),
			"not valid UTF-8",
		},
		{
			"core instance bad arg kind",
			componentBytes(sec(SectionCoreInstance, 0x01, 0x00, 0x00, 0x01, 0x01, 'a', 0x00, 0x00)),
			"unknown kind 0x00",
		},
		{
			"core module import missing marker",
			componentBytes(sec(SectionImport, 0x01, 0x00, 0x01, 'm', 0x00, 0x12, 0x00)),
			"expected core module marker 0x11",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeImports(t *testing.T) {
	payload := []byte{0x05}
	// instance import
	payload = appendExternName(payload, "wasi:cli/environment")
	payload = append(payload, ExternInstance, 0x02)
	// func import
	payload = appendExternName(payload, "run")
	payload = append(payload, ExternFunc, 0x01)
	// core module import
	payload = appendExternName(payload, "mod")
	payload = append(payload, ExternCoreModule, 0x11, 0x00)
	// type import, eq bound
	payload = appendExternName(payload, "t")
	payload = append(payload, ExternType, 0x00, 0x03)
	// type import, sub-resource bound
	payload = appendExternName(payload, "r")
	payload = append(payload, ExternType, 0x01)

	c, err := Decode(componentBytes(sec(SectionImport, payload...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Imports) != 5 {
		t.Fatalf("got %d imports, want 5", len(c.Imports))
	}
	want := []Import{
		{Name: "wasi:cli/environment", Desc: ExternDesc{Kind: ExternInstance, TypeIndex: 2}},
		{Name: "run", Desc: ExternDesc{Kind: ExternFunc, TypeIndex: 1}},
		{Name: "mod", Desc: ExternDesc{Kind: ExternCoreModule}},
		{Name: "t", Desc: ExternDesc{Kind: ExternType, TypeIndex: 3}},
		{Name: "r", Desc: ExternDesc{Kind: ExternType, ResourceBound: true}},
	}
	for i, w := range want {
		if c.Imports[i] != w {
			t.Errorf("import %d = %+v, want %+v", i, c.Imports[i], w)
		}
	}
}

func TestDecodeExports(t *testing.T) {
	payload := []byte{0x03}
	// plain func export
	payload = appendExternName(payload, "add")
	payload = append(payload, SortFunc, 0x04, 0x00)
	// core memory export
	payload = appendExternName(payload, "mem")
	payload = append(payload, SortCore, CoreSortMemory, 0x00, 0x00)
	// func export with type ascription
	payload = appendExternName(payload, "typed")
	payload = append(payload, SortFunc, 0x01, 0x01, ExternFunc, 0x07)

	c, err := Decode(componentBytes(sec(SectionExport, payload...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Exports) != 3 {
		t.Fatalf("got %d exports, want 3", len(c.Exports))
	}
	if e := c.Exports[0]; e.Name != "add" || e.Sort != SortFunc || e.SortIndex != 4 || e.Desc != nil {
		t.Errorf("export 0 = %+v", e)
	}
	if e := c.Exports[1]; e.Name != "mem" || e.Sort != SortCore || e.CoreSort != CoreSortMemory {
		t.Errorf("export 1 = %+v", e)
	}
	e := c.Exports[2]
	if e.Desc == nil || e.Desc.Kind != ExternFunc || e.Desc.TypeIndex != 7 {
		t.Errorf("export 2 ascription = %+v", e.Desc)
	}

	names := c.ExportNames()
	if len(names) != 3 || names[0] != "add" || names[2] != "typed" {
		t.Errorf("ExportNames = %v", names)
	}
}

func TestDecodeAliases(t *testing.T) {
	payload := []byte{0x03}
	// component func from instance export
	payload = append(payload, SortFunc, AliasExport, 0x02)
	payload = appendName(payload, "run")
	// core func from core instance export
	payload = append(payload, SortCore, CoreSortFunc, AliasCoreInstanceExport, 0x01)
	payload = appendName(payload, "cabi_realloc")
	// outer type
	payload = append(payload, SortType, AliasOuter, 0x01, 0x05)

	c, err := Decode(componentBytes(sec(SectionAlias, payload...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Aliases) != 3 {
		t.Fatalf("got %d aliases, want 3", len(c.Aliases))
	}
	if a := c.Aliases[0]; a.Sort != SortFunc || a.Target != AliasExport || a.InstanceIndex != 2 || a.Name != "run" {
		t.Errorf("alias 0 = %+v", a)
	}
	if a := c.Aliases[1]; a.Sort != SortCore || a.CoreSort != CoreSortFunc || a.Target != AliasCoreInstanceExport || a.Name != "cabi_realloc" {
		t.Errorf("alias 1 = %+v", a)
	}
	if a := c.Aliases[2]; a.Sort != SortType || a.Target != AliasOuter || a.OuterCount != 1 || a.OuterIndex != 5 {
		t.Errorf("alias 2 = %+v", a)
	}
}

func TestDecodeCanonSections(t *testing.T) {
	lift := []byte{0x01, CanonLift, 0x00, 0x03}
	lift = append(lift, 0x03, CanonOptUTF8, CanonOptMemory, 0x00, CanonOptRealloc, 0x01)
	lift = append(lift, 0x02)

	lower := []byte{0x01, CanonLower, 0x00, 0x04, 0x00}

	resource := []byte{0x01, CanonResourceDrop, 0x09}

	c, err := Decode(componentBytes(
		sec(SectionCanon, lift...),
		sec(SectionCanon, lower...),
		sec(SectionCanon, resource...),
	))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Canons) != 3 {
		t.Fatalf("got %d canons, want 3", len(c.Canons))
	}

	d := c.Canons[0]
	if d.Kind != CanonLift || d.FuncIndex != 3 || d.TypeIndex != 2 {
		t.Errorf("lift = %+v", d)
	}
	if enc := d.StringEncoding(); enc != CanonOptUTF8 {
		t.Errorf("StringEncoding = 0x%02x", enc)
	}
	if idx, ok := d.MemoryIndex(); !ok || idx != 0 {
		t.Errorf("MemoryIndex = %d, %v", idx, ok)
	}
	if idx, ok := d.ReallocIndex(); !ok || idx != 1 {
		t.Errorf("ReallocIndex = %d, %v", idx, ok)
	}

	d = c.Canons[1]
	if d.Kind != CanonLower || d.FuncIndex != 4 || len(d.Options) != 0 {
		t.Errorf("lower = %+v", d)
	}
	if enc := d.StringEncoding(); enc != CanonOptUTF8 {
		t.Errorf("default StringEncoding = 0x%02x", enc)
	}
	if _, ok := d.MemoryIndex(); ok {
		t.Error("lower should have no memory option")
	}

	d = c.Canons[2]
	if d.Kind != CanonResourceDrop || d.ResourceType != 9 {
		t.Errorf("resource = %+v", d)
	}
}

func TestDecodeCoreInstances(t *testing.T) {
	payload := []byte{0x02}
	// instantiate module 1 with two instance args
	payload = append(payload, CoreInstanceInstantiate, 0x01, 0x02)
	payload = appendName(payload, "env")
	payload = append(payload, CoreSortInstance, 0x00)
	payload = appendName(payload, "wasi_snapshot_preview1")
	payload = append(payload, CoreSortInstance, 0x01)
	// from-exports
	payload = append(payload, CoreInstanceFromExports, 0x02)
	payload = appendName(payload, "fd_write")
	payload = append(payload, CoreExportFunc, 0x03)
	payload = appendName(payload, "memory")
	payload = append(payload, CoreExportMemory, 0x00)

	c, err := Decode(componentBytes(sec(SectionCoreInstance, payload...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.CoreInstances) != 2 {
		t.Fatalf("got %d instances, want 2", len(c.CoreInstances))
	}

	inst := c.CoreInstances[0]
	if inst.Kind != CoreInstanceInstantiate || inst.ModuleIndex != 1 || len(inst.Args) != 2 {
		t.Fatalf("instance 0 = %+v", inst)
	}
	if inst.Args[0] != (CoreInstanceArg{Name: "env", InstanceIndex: 0}) {
		t.Errorf("arg 0 = %+v", inst.Args[0])
	}
	if inst.Args[1].Name != "wasi_snapshot_preview1" || inst.Args[1].InstanceIndex != 1 {
		t.Errorf("arg 1 = %+v", inst.Args[1])
	}

	inst = c.CoreInstances[1]
	if inst.Kind != CoreInstanceFromExports || len(inst.Exports) != 2 {
		t.Fatalf("instance 1 = %+v", inst)
	}
	if inst.Exports[0] != (CoreInstanceExport{Name: "fd_write", Kind: CoreExportFunc, Index: 3}) {
		t.Errorf("export 0 = %+v", inst.Exports[0])
	}
	if inst.Exports[1].Kind != CoreExportMemory {
		t.Errorf("export 1 = %+v", inst.Exports[1])
	}
}

func TestDecodeCoreModulesAndCustoms(t *testing.T) {
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	custom := appendName(nil, MetadataSectionName)
	custom = append(custom, []byte("world demo {}")...)

	c, err := Decode(componentBytes(
		sec(SectionCoreModule, mod...),
		sec(SectionCustom, custom...),
	))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.CoreModules) != 1 || !bytes.Equal(c.CoreModules[0], mod) {
		t.Errorf("core modules = %v", c.CoreModules)
	}
	data, ok := c.CustomSection(MetadataSectionName)
	if !ok || string(data) != "world demo {}" {
		t.Errorf("CustomSection = %q, %v", data, ok)
	}
	if _, ok := c.CustomSection("absent"); ok {
		t.Error("unexpected custom section")
	}
}

func TestDecodeStart(t *testing.T) {
	payload := []byte{0x04, 0x02, 0x01, 0x02, 0x01}
	c, err := Decode(componentBytes(sec(SectionStart, payload...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Start == nil || c.Start.FuncIndex != 4 || len(c.Start.Args) != 2 || c.Start.Results != 1 {
		t.Errorf("start = %+v", c.Start)
	}
}

func TestLEB128RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 16384, 0xffffffff}
	for _, v := range values {
		buf := appendLEB128(nil, v)
		r := getReader(buf)
		got, err := readLEB128(r)
		putReader(r)
		if err != nil || got != v {
			t.Errorf("round trip %d: got %d, err %v", v, got, err)
		}
	}
}

func TestSLEB128RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, 64, -64, -65, 1<<32 - 1, -(1 << 32)}
	for _, v := range values {
		buf := appendSLEB128(nil, v)
		r := getReader(buf)
		got, err := readSLEB128(r)
		putReader(r)
		if err != nil || got != v {
			t.Errorf("round trip %d: got %d, err %v", v, got, err)
		}
	}
}
