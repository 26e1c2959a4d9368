package wasm

import (
	"bytes"
	"reflect"
	"testing"
)

// testModule builds a module exercising every section the encoder
// emits.
func testModule() *Module {
	start := uint32(2)
	return &Module{
		Types: []FuncType{
			{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI32}},
			{},
			{Params: []ValType{ValI32}},
		},
		Imports: []Import{
			{Module: "wasi_snapshot_preview1", Name: "proc_exit", Kind: KindFunc, TypeIndex: 2},
			{Module: "env", Name: "memory", Kind: KindMemory, Memory: MemoryType{Limits: Limits{Min: 1, Max: 16, HasMax: true}}},
		},
		Funcs: []uint32{0, 1},
		Tables: []TableType{
			{ElemType: ValFuncRef, Limits: Limits{Min: 1, Max: 1, HasMax: true}},
		},
		Globals: []Global{
			{Type: GlobalType{ValType: ValI32, Mutable: true}, Init: []byte{OpI32Const, 0x00, OpEnd}},
		},
		Exports: []Export{
			{Name: "add", Kind: KindFunc, Index: 1},
			{Name: "_start", Kind: KindFunc, Index: 2},
		},
		Start: &start,
		Elements: []Element{
			{Flags: 0, ElemType: ValFuncRef, Offset: []byte{OpI32Const, 0x00, OpEnd}, FuncIdxs: []uint32{1}},
		},
		Code: []FuncBody{
			{Code: []byte{OpLocalGet, 0x00, OpLocalGet, 0x01, OpI32Add, OpEnd}},
			{Locals: []LocalEntry{{Count: 1, Type: ValI64}}, Code: []byte{OpEnd}},
		},
		Data: []DataSegment{
			{Flags: 0, Offset: []byte{OpI32Const, 0x08, OpEnd}, Data: []byte("hi")},
		},
		Customs: []CustomSection{
			{Name: "producers", Data: []byte{0x00}},
		},
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := testModule()
	enc := m.Encode()

	parsed, err := ParseModule(enc)
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	if !reflect.DeepEqual(m, parsed) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", parsed, m)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	m := testModule()
	first := m.Encode()
	second := m.Encode()
	if !bytes.Equal(first, second) {
		t.Error("Encode() produced different bytes for the same module")
	}

	parsed, err := ParseModule(first)
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	if !bytes.Equal(first, parsed.Encode()) {
		t.Error("re-encoding a parsed module changed the bytes")
	}
}

func TestEncodeOmitsEmptySections(t *testing.T) {
	m := &Module{}
	enc := m.Encode()
	if len(enc) != 8 {
		t.Errorf("empty module encoded to %d bytes, want 8 (preamble only)", len(enc))
	}
}

func TestEncodeMemory64Limits(t *testing.T) {
	m := &Module{
		Memories: []MemoryType{
			{Limits: Limits{Min: 1, Max: MemoryMaxPages64, HasMax: true, Memory64: true}},
		},
	}
	parsed, err := ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	got := parsed.Memories[0].Limits
	if !got.Memory64 || got.Min != 1 || got.Max != MemoryMaxPages64 {
		t.Errorf("limits = %+v, want memory64 1..%d", got, MemoryMaxPages64)
	}
}

func TestEncodeSharedMemory(t *testing.T) {
	m := &Module{
		Memories: []MemoryType{
			{Limits: Limits{Min: 2, Max: 4, HasMax: true, Shared: true}},
		},
	}
	parsed, err := ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	if !parsed.Memories[0].Limits.Shared {
		t.Error("shared flag lost in round trip")
	}
}

func TestEncodeTags(t *testing.T) {
	m := &Module{
		Types: []FuncType{{Params: []ValType{ValI32}}},
		Tags:  []TagType{{TypeIndex: 0}},
	}
	parsed, err := ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	if len(parsed.Tags) != 1 || parsed.Tags[0].TypeIndex != 0 {
		t.Errorf("tags = %+v, want one tag with type 0", parsed.Tags)
	}
}

func TestEncodeElementModes(t *testing.T) {
	tests := []struct {
		name string
		elem Element
	}{
		{
			name: "active implicit table",
			elem: Element{Flags: 0, ElemType: ValFuncRef, Offset: []byte{OpI32Const, 0x00, OpEnd}, FuncIdxs: []uint32{0}},
		},
		{
			name: "passive func indices",
			elem: Element{Flags: 1, ElemType: ValFuncRef, FuncIdxs: []uint32{0}},
		},
		{
			name: "active explicit table",
			elem: Element{Flags: 2, ElemType: ValFuncRef, TableIndex: 0, Offset: []byte{OpI32Const, 0x00, OpEnd}, FuncIdxs: []uint32{0}},
		},
		{
			name: "declared",
			elem: Element{Flags: 3, ElemType: ValFuncRef, FuncIdxs: []uint32{0}},
		},
		{
			name: "active expressions",
			elem: Element{Flags: 4, ElemType: ValFuncRef, Offset: []byte{OpI32Const, 0x00, OpEnd}, Exprs: [][]byte{{OpRefFunc, 0x00, OpEnd}}},
		},
		{
			name: "passive typed expressions",
			elem: Element{Flags: 5, ElemType: ValFuncRef, Exprs: [][]byte{{OpRefNull, byte(ValFuncRef), OpEnd}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Module{
				Types:    []FuncType{{}},
				Funcs:    []uint32{0},
				Tables:   []TableType{{ElemType: ValFuncRef, Limits: Limits{Min: 1}}},
				Elements: []Element{tt.elem},
				Code:     []FuncBody{{Code: []byte{OpEnd}}},
			}
			parsed, err := ParseModule(m.Encode())
			if err != nil {
				t.Fatalf("ParseModule() error = %v", err)
			}
			if !reflect.DeepEqual(parsed.Elements[0], tt.elem) {
				t.Errorf("element = %+v, want %+v", parsed.Elements[0], tt.elem)
			}
		})
	}
}

func TestEncodeDataModes(t *testing.T) {
	count := uint32(2)
	m := &Module{
		Memories:  []MemoryType{{Limits: Limits{Min: 1}}},
		DataCount: &count,
		Data: []DataSegment{
			{Flags: 1, Data: []byte{1, 2, 3}},
			{Flags: 2, MemoryIndex: 0, Offset: []byte{OpI32Const, 0x00, OpEnd}, Data: []byte{4}},
		},
	}
	parsed, err := ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	if !reflect.DeepEqual(parsed.Data, m.Data) {
		t.Errorf("data = %+v, want %+v", parsed.Data, m.Data)
	}
	if parsed.DataCount == nil || *parsed.DataCount != 2 {
		t.Error("datacount lost in round trip")
	}
}
