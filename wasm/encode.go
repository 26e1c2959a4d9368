package wasm

import (
	"github.com/wippyai/wasm-component-ld/wasm/internal/binary"
)

// Encode serializes the module in canonical section order. Empty
// sections are omitted. Custom sections are emitted after the data
// section in their recorded order.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		w.WriteSection(SectionType, m.encodeTypeSection())
	}
	if len(m.Imports) > 0 {
		w.WriteSection(SectionImport, m.encodeImportSection())
	}
	if len(m.Funcs) > 0 {
		w.WriteSection(SectionFunction, m.encodeFunctionSection())
	}
	if len(m.Tables) > 0 {
		w.WriteSection(SectionTable, m.encodeTableSection())
	}
	if len(m.Memories) > 0 {
		w.WriteSection(SectionMemory, m.encodeMemorySection())
	}
	if len(m.Tags) > 0 {
		w.WriteSection(SectionTag, m.encodeTagSection())
	}
	if len(m.Globals) > 0 {
		w.WriteSection(SectionGlobal, m.encodeGlobalSection())
	}
	if len(m.Exports) > 0 {
		w.WriteSection(SectionExport, m.encodeExportSection())
	}
	if m.Start != nil {
		sw := binary.NewWriter()
		sw.WriteU32(*m.Start)
		w.WriteSection(SectionStart, sw.Bytes())
	}
	if len(m.Elements) > 0 {
		w.WriteSection(SectionElement, m.encodeElementSection())
	}
	if m.DataCount != nil {
		sw := binary.NewWriter()
		sw.WriteU32(*m.DataCount)
		w.WriteSection(SectionDataCount, sw.Bytes())
	}
	if len(m.Code) > 0 {
		w.WriteSection(SectionCode, m.encodeCodeSection())
	}
	if len(m.Data) > 0 {
		w.WriteSection(SectionData, m.encodeDataSection())
	}
	for _, c := range m.Customs {
		cw := binary.NewWriter()
		cw.WriteName(c.Name)
		cw.WriteBytes(c.Data)
		w.WriteSection(SectionCustom, cw.Bytes())
	}
	return w.Bytes()
}

func (m *Module) encodeTypeSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		w.Byte(FuncTypeByte)
		writeFuncType(w, ft)
	}
	return w.Bytes()
}

func writeFuncType(w *binary.Writer, ft FuncType) {
	w.WriteU32(uint32(len(ft.Params)))
	for _, p := range ft.Params {
		w.Byte(byte(p))
	}
	w.WriteU32(uint32(len(ft.Results)))
	for _, r := range ft.Results {
		w.Byte(byte(r))
	}
}

func (m *Module) encodeImportSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		w.Byte(imp.Kind)
		switch imp.Kind {
		case KindFunc:
			w.WriteU32(imp.TypeIndex)
		case KindTable:
			writeTableType(w, imp.Table)
		case KindMemory:
			writeLimits(w, imp.Memory.Limits)
		case KindGlobal:
			writeGlobalType(w, imp.Global)
		case KindTag:
			w.Byte(0x00)
			w.WriteU32(imp.TypeIndex)
		}
	}
	return w.Bytes()
}

func writeTableType(w *binary.Writer, tt TableType) {
	w.Byte(byte(tt.ElemType))
	writeLimits(w, tt.Limits)
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.HasMax {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	w.Byte(flags)
	if l.Memory64 {
		w.WriteU64(l.Min)
		if l.HasMax {
			w.WriteU64(l.Max)
		}
	} else {
		w.WriteU32(uint32(l.Min))
		if l.HasMax {
			w.WriteU32(uint32(l.Max))
		}
	}
}

func writeGlobalType(w *binary.Writer, gt GlobalType) {
	w.Byte(byte(gt.ValType))
	if gt.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}

func (m *Module) encodeFunctionSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Funcs)))
	for _, tidx := range m.Funcs {
		w.WriteU32(tidx)
	}
	return w.Bytes()
}

func (m *Module) encodeTableSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Tables)))
	for _, tt := range m.Tables {
		writeTableType(w, tt)
	}
	return w.Bytes()
}

func (m *Module) encodeMemorySection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Memories)))
	for _, mt := range m.Memories {
		writeLimits(w, mt.Limits)
	}
	return w.Bytes()
}

func (m *Module) encodeTagSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Tags)))
	for _, t := range m.Tags {
		w.Byte(0x00)
		w.WriteU32(t.TypeIndex)
	}
	return w.Bytes()
}

func (m *Module) encodeGlobalSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		writeGlobalType(w, g.Type)
		w.WriteBytes(g.Init)
	}
	return w.Bytes()
}

func (m *Module) encodeExportSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		w.WriteName(e.Name)
		w.Byte(e.Kind)
		w.WriteU32(e.Index)
	}
	return w.Bytes()
}

func (m *Module) encodeElementSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Elements)))
	for _, e := range m.Elements {
		writeElement(w, e)
	}
	return w.Bytes()
}

func writeElement(w *binary.Writer, e Element) {
	w.WriteU32(e.Flags)
	active := e.Flags&0x01 == 0
	if active && e.Flags&0x02 != 0 {
		w.WriteU32(e.TableIndex)
	}
	if active {
		w.WriteBytes(e.Offset)
	}
	if e.Flags&0x04 == 0 {
		if e.Flags != 0 {
			w.Byte(ElemKindFuncRef)
		}
		w.WriteU32(uint32(len(e.FuncIdxs)))
		for _, idx := range e.FuncIdxs {
			w.WriteU32(idx)
		}
		return
	}
	if e.Flags != 4 {
		w.Byte(byte(e.ElemType))
	}
	w.WriteU32(uint32(len(e.Exprs)))
	for _, expr := range e.Exprs {
		w.WriteBytes(expr)
	}
}

func (m *Module) encodeCodeSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Code)))
	for _, fb := range m.Code {
		bw := binary.NewWriter()
		bw.WriteU32(uint32(len(fb.Locals)))
		for _, l := range fb.Locals {
			bw.WriteU32(l.Count)
			bw.Byte(byte(l.Type))
		}
		bw.WriteBytes(fb.Code)
		w.WriteU32(uint32(bw.Len()))
		w.WriteBytes(bw.Bytes())
	}
	return w.Bytes()
}

func (m *Module) encodeDataSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Data)))
	for _, seg := range m.Data {
		w.WriteU32(seg.Flags)
		switch seg.Flags {
		case 0:
			w.WriteBytes(seg.Offset)
		case 2:
			w.WriteU32(seg.MemoryIndex)
			w.WriteBytes(seg.Offset)
		}
		w.WriteU32(uint32(len(seg.Data)))
		w.WriteBytes(seg.Data)
	}
	return w.Bytes()
}
