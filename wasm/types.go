package wasm

import (
	"fmt"
	"strings"
)

// ValType is a value type as encoded in the binary format.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	}
	return fmt.Sprintf("valtype(0x%02X)", byte(v))
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures have identical parameter and
// result lists.
func (f FuncType) Equal(other FuncType) bool {
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i, p := range f.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range f.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature in the form "(i32 i32) -> (i32)".
// A missing result list renders as "()".
func (f FuncType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(") -> (")
	for i, r := range f.Results {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Limits bound a table or memory size. Memory64 limits are read from
// and written as 64-bit LEB128 values.
type Limits struct {
	Min      uint64
	Max      uint64
	HasMax   bool
	Shared   bool
	Memory64 bool
}

// TableType describes a table's element type and size bounds.
type TableType struct {
	ElemType ValType
	Limits   Limits
}

// MemoryType describes a linear memory's size bounds.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// TagType describes an exception tag. A tag references a function type
// whose result list must be empty.
type TagType struct {
	TypeIndex uint32
}

// Import is a single import entry. Exactly one descriptor field is
// meaningful according to Kind.
type Import struct {
	Module string
	Name   string
	Kind   byte

	TypeIndex uint32     // KindFunc, KindTag
	Table     TableType  // KindTable
	Memory    MemoryType // KindMemory
	Global    GlobalType // KindGlobal
}

// Export is a single export entry.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Global pairs a global type with its initializer. Init holds the raw
// constant expression bytes including the trailing end opcode.
type Global struct {
	Type GlobalType
	Init []byte
}

// LocalEntry is one run-length encoded local declaration.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// FuncBody is one code section entry. Code holds the raw instruction
// bytes including the trailing end opcode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// Element is an element segment. Active modes (flags 0, 2, 4, 6) carry
// a table index and offset expression. Modes 0-3 list function
// indices; modes 4-7 list constant expressions kept as raw bytes.
type Element struct {
	Flags      uint32
	TableIndex uint32
	Offset     []byte
	ElemType   ValType
	FuncIdxs   []uint32
	Exprs      [][]byte
}

// DataSegment is a data segment. Flags 0 and 2 are active, 1 is
// passive. Offset holds the raw constant expression for active modes.
type DataSegment struct {
	Flags       uint32
	MemoryIndex uint32
	Offset      []byte
	Data        []byte
}

// CustomSection preserves a custom section's name and payload.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is a parsed core module. Each index space counts imported
// entries before locally defined ones, in binary order.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Funcs     []uint32 // type indices of locally defined functions
	Tables    []TableType
	Memories  []MemoryType
	Tags      []TagType
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elements  []Element
	DataCount *uint32
	Code      []FuncBody
	Data      []DataSegment
	Customs   []CustomSection
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.countImports(KindFunc)
}

// NumImportedTables returns the number of imported tables.
func (m *Module) NumImportedTables() int {
	return m.countImports(KindTable)
}

// NumImportedMemories returns the number of imported memories.
func (m *Module) NumImportedMemories() int {
	return m.countImports(KindMemory)
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	return m.countImports(KindGlobal)
}

// NumImportedTags returns the number of imported tags.
func (m *Module) NumImportedTags() int {
	return m.countImports(KindTag)
}

func (m *Module) countImports(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// NumTables returns the size of the table index space.
func (m *Module) NumTables() int {
	return m.NumImportedTables() + len(m.Tables)
}

// NumMemories returns the size of the memory index space.
func (m *Module) NumMemories() int {
	return m.NumImportedMemories() + len(m.Memories)
}

// NumGlobals returns the size of the global index space.
func (m *Module) NumGlobals() int {
	return m.NumImportedGlobals() + len(m.Globals)
}

// NumTags returns the size of the tag index space.
func (m *Module) NumTags() int {
	return m.NumImportedTags() + len(m.Tags)
}

// FuncTypeAt returns the signature of the function at the given index
// in the function index space, imports first.
func (m *Module) FuncTypeAt(idx uint32) (FuncType, bool) {
	i := idx
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if i == 0 {
			if int(imp.TypeIndex) >= len(m.Types) {
				return FuncType{}, false
			}
			return m.Types[imp.TypeIndex], true
		}
		i--
	}
	if int(i) >= len(m.Funcs) {
		return FuncType{}, false
	}
	tidx := m.Funcs[i]
	if int(tidx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[tidx], true
}

// AddType interns a signature, reusing an existing identical entry,
// and returns its type index.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ExportByName returns the export with the given name.
func (m *Module) ExportByName(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}
