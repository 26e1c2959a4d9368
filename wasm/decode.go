package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-component-ld/wasm/internal/binary"
)

// sectionRank orders non-custom sections for the decoder. The tag
// section is ranked between memory and global even though its ID is 13.
func sectionRank(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	}
	return -1
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "datacount"
	case SectionTag:
		return "tag"
	}
	return fmt.Sprintf("section(%d)", id)
}

// ParseModule decodes a core module binary. All sections are parsed;
// custom sections are preserved verbatim. Section order and section
// size consistency are enforced, as are the cross-section function and
// data segment counts.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(bytes.NewReader(data))

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("preamble", io.ErrUnexpectedEOF)
	}
	if magic != Magic {
		return nil, r.WrapError("preamble", fmt.Errorf("invalid magic number 0x%08X", magic))
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("preamble", io.ErrUnexpectedEOF)
	}
	if version != Version {
		return nil, r.WrapError("preamble", fmt.Errorf("unsupported version %d", version))
	}

	m := &Module{}
	lastRank := 0
	for {
		id, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError(sectionName(id), fmt.Errorf("reading section size: %w", err))
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError(sectionName(id), io.ErrUnexpectedEOF)
		}

		if id != SectionCustom {
			rank := sectionRank(id)
			if rank < 0 {
				return nil, r.WrapError(sectionName(id), fmt.Errorf("unknown section ID %d", id))
			}
			if rank <= lastRank {
				return nil, r.WrapError(sectionName(id), errors.New("section out of order"))
			}
			lastRank = rank
		}

		if err := m.parseSection(id, payload); err != nil {
			return nil, r.WrapError(sectionName(id), err)
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("wasm: function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return nil, fmt.Errorf("wasm: datacount %d does not match data segment count %d", *m.DataCount, len(m.Data))
	}
	return m, nil
}

// parseSection dispatches one section payload. Non-custom sections
// must consume their payload exactly.
func (m *Module) parseSection(id byte, payload []byte) error {
	if id == SectionCustom {
		return m.parseCustomSection(payload)
	}

	r := binary.NewReader(bytes.NewReader(payload))
	var err error
	switch id {
	case SectionType:
		err = m.parseTypeSection(r)
	case SectionImport:
		err = m.parseImportSection(r)
	case SectionFunction:
		err = m.parseFunctionSection(r)
	case SectionTable:
		err = m.parseTableSection(r)
	case SectionMemory:
		err = m.parseMemorySection(r)
	case SectionTag:
		err = m.parseTagSection(r)
	case SectionGlobal:
		err = m.parseGlobalSection(r)
	case SectionExport:
		err = m.parseExportSection(r)
	case SectionStart:
		err = m.parseStartSection(r)
	case SectionElement:
		err = m.parseElementSection(r)
	case SectionDataCount:
		err = m.parseDataCountSection(r)
	case SectionCode:
		err = m.parseCodeSection(r)
	case SectionData:
		err = m.parseDataSection(r)
	}
	if err != nil {
		return err
	}
	if r.Position() != len(payload) {
		return fmt.Errorf("section size mismatch: declared %d, consumed %d", len(payload), r.Position())
	}
	return nil
}

func (m *Module) parseCustomSection(payload []byte) error {
	r := binary.NewReader(bytes.NewReader(payload))
	name, err := r.ReadName()
	if err != nil {
		return fmt.Errorf("reading custom section name: %w", err)
	}
	data := make([]byte, len(payload)-r.Position())
	copy(data, payload[r.Position():])
	m.Customs = append(m.Customs, CustomSection{Name: name, Data: data})
	return nil
}

func (m *Module) parseTypeSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch form {
		case FuncTypeByte:
		case StructTypeByte, ArrayTypeByte, RecTypeByte:
			return fmt.Errorf("type %d: GC composite types are not supported", i)
		default:
			return fmt.Errorf("type %d: invalid form 0x%02X", i, form)
		}
		ft, err := readFuncType(r)
		if err != nil {
			return fmt.Errorf("type %d: %w", i, err)
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	var ft FuncType
	nparams, err := r.ReadU32()
	if err != nil {
		return ft, err
	}
	for i := uint32(0); i < nparams; i++ {
		vt, err := readValType(r)
		if err != nil {
			return ft, err
		}
		ft.Params = append(ft.Params, vt)
	}
	nresults, err := r.ReadU32()
	if err != nil {
		return ft, err
	}
	for i := uint32(0); i < nresults; i++ {
		vt, err := readValType(r)
		if err != nil {
			return ft, err
		}
		ft.Results = append(ft.Results, vt)
	}
	return ft, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return ValType(b), nil
	}
	if b == 0x63 || b == 0x64 {
		return 0, errors.New("typed references are not supported")
	}
	return 0, fmt.Errorf("invalid value type 0x%02X", b)
}

func readRefType(r *binary.Reader) (ValType, error) {
	vt, err := readValType(r)
	if err != nil {
		return 0, err
	}
	if vt != ValFuncRef && vt != ValExtern {
		return 0, fmt.Errorf("%s is not a reference type", vt)
	}
	return vt, nil
}

func (m *Module) parseImportSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("import %d: %w", i, err)
		}
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("import %d: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("import %d: %w", i, err)
		}
		imp := Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			imp.TypeIndex, err = r.ReadU32()
		case KindTable:
			imp.Table, err = readTableType(r)
		case KindMemory:
			imp.Memory.Limits, err = readLimits(r)
		case KindGlobal:
			imp.Global, err = readGlobalType(r)
		case KindTag:
			imp.TypeIndex, err = readTagType(r)
		default:
			err = fmt.Errorf("invalid import kind %d", kind)
		}
		if err != nil {
			return fmt.Errorf("import %d (%s.%s): %w", i, mod, name, err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	var tt TableType
	elem, err := readRefType(r)
	if err != nil {
		return tt, err
	}
	tt.ElemType = elem
	tt.Limits, err = readLimits(r)
	return tt, err
}

func readLimits(r *binary.Reader) (Limits, error) {
	var l Limits
	flags, err := r.ReadByte()
	if err != nil {
		return l, err
	}
	if flags&^(LimitsHasMax|LimitsShared|LimitsMemory64) != 0 {
		return l, fmt.Errorf("invalid limits flags 0x%02X", flags)
	}
	l.HasMax = flags&LimitsHasMax != 0
	l.Shared = flags&LimitsShared != 0
	l.Memory64 = flags&LimitsMemory64 != 0
	if l.Shared && !l.HasMax {
		return l, errors.New("shared limits require a maximum")
	}
	if l.Memory64 {
		l.Min, err = r.ReadU64()
	} else {
		var v uint32
		v, err = r.ReadU32()
		l.Min = uint64(v)
	}
	if err != nil {
		return l, err
	}
	if l.HasMax {
		if l.Memory64 {
			l.Max, err = r.ReadU64()
		} else {
			var v uint32
			v, err = r.ReadU32()
			l.Max = uint64(v)
		}
		if err != nil {
			return l, err
		}
	}
	return l, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	var gt GlobalType
	vt, err := readValType(r)
	if err != nil {
		return gt, err
	}
	gt.ValType = vt
	mut, err := r.ReadByte()
	if err != nil {
		return gt, err
	}
	switch mut {
	case 0x00:
	case 0x01:
		gt.Mutable = true
	default:
		return gt, fmt.Errorf("invalid mutability 0x%02X", mut)
	}
	return gt, nil
}

func readTagType(r *binary.Reader) (uint32, error) {
	attr, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if attr != 0x00 {
		return 0, fmt.Errorf("invalid tag attribute 0x%02X", attr)
	}
	return r.ReadU32()
}

func (m *Module) parseFunctionSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tidx, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		m.Funcs = append(m.Funcs, tidx)
	}
	return nil
}

func (m *Module) parseTableSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func (m *Module) parseMemorySection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, err := readLimits(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, MemoryType{Limits: limits})
	}
	return nil
}

func (m *Module) parseTagSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tidx, err := readTagType(r)
		if err != nil {
			return fmt.Errorf("tag %d: %w", i, err)
		}
		m.Tags = append(m.Tags, TagType{TypeIndex: tidx})
	}
	return nil
}

func (m *Module) parseGlobalSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// readConstExpr copies a constant expression through to its end
// opcode. Immediates are re-encoded in minimal LEB128 form. The
// extended-const proposal's integer arithmetic and v128.const are
// accepted; GC constant expressions are not.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	w := binary.NewWriter()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		w.Byte(op)
		switch op {
		case OpEnd:
			return w.Bytes(), nil
		case OpI32Const:
			v, err := r.ReadS32()
			if err != nil {
				return nil, err
			}
			w.WriteS64(int64(v))
		case OpI64Const:
			v, err := r.ReadS64()
			if err != nil {
				return nil, err
			}
			w.WriteS64(v)
		case OpF32Const:
			b, err := r.ReadBytes(4)
			if err != nil {
				return nil, err
			}
			w.WriteBytes(b)
		case OpF64Const:
			b, err := r.ReadBytes(8)
			if err != nil {
				return nil, err
			}
			w.WriteBytes(b)
		case OpGlobalGet, OpRefFunc:
			v, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			w.WriteU32(v)
		case OpRefNull:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if b != byte(ValFuncRef) && b != byte(ValExtern) {
				return nil, fmt.Errorf("ref.null heap type 0x%02X is not supported", b)
			}
			w.Byte(b)
		case OpI32Add, OpI32Sub, OpI32Mul, OpI64Add, OpI64Sub, OpI64Mul:
			// extended-const arithmetic, no immediates
		case OpPrefixSIMD:
			sub, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			if sub != SimdV128Const {
				return nil, fmt.Errorf("SIMD opcode 0x%02X is not valid in a constant expression", sub)
			}
			w.WriteU32(sub)
			b, err := r.ReadBytes(16)
			if err != nil {
				return nil, err
			}
			w.WriteBytes(b)
		case OpPrefixGC:
			return nil, errors.New("GC constant expressions are not supported")
		default:
			return nil, fmt.Errorf("opcode 0x%02X is not valid in a constant expression", op)
		}
	}
}

func (m *Module) parseExportSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("export %d: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("export %d: %w", i, err)
		}
		if kind > KindTag {
			return fmt.Errorf("export %d (%s): invalid kind %d", i, name, kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("export %d (%s): %w", i, name, err)
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func (m *Module) parseStartSection(r *binary.Reader) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func (m *Module) parseElementSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		elem, err := readElement(r)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func readElement(r *binary.Reader) (Element, error) {
	var e Element
	flags, err := r.ReadU32()
	if err != nil {
		return e, err
	}
	if flags > 7 {
		return e, fmt.Errorf("invalid element flags %d", flags)
	}
	e.Flags = flags
	e.ElemType = ValFuncRef

	// Bit 0: passive/declared. Bit 1: explicit table index (active) or
	// declared (non-active). Bit 2: expression encoding.
	active := flags&0x01 == 0
	if active && flags&0x02 != 0 {
		if e.TableIndex, err = r.ReadU32(); err != nil {
			return e, err
		}
	}
	if active {
		if e.Offset, err = readConstExpr(r); err != nil {
			return e, err
		}
	}

	if flags&0x04 == 0 {
		// Function-index encoding. Flags 1-3 carry an elemkind byte.
		if flags != 0 {
			kind, err := r.ReadByte()
			if err != nil {
				return e, err
			}
			if kind != ElemKindFuncRef {
				return e, fmt.Errorf("invalid elemkind 0x%02X", kind)
			}
		}
		n, err := r.ReadU32()
		if err != nil {
			return e, err
		}
		for j := uint32(0); j < n; j++ {
			idx, err := r.ReadU32()
			if err != nil {
				return e, err
			}
			e.FuncIdxs = append(e.FuncIdxs, idx)
		}
		return e, nil
	}

	// Expression encoding. Flags 5-7 carry an explicit reftype.
	if flags != 4 {
		if e.ElemType, err = readRefType(r); err != nil {
			return e, err
		}
	}
	n, err := r.ReadU32()
	if err != nil {
		return e, err
	}
	for j := uint32(0); j < n; j++ {
		expr, err := readConstExpr(r)
		if err != nil {
			return e, err
		}
		e.Exprs = append(e.Exprs, expr)
	}
	return e, nil
}

func (m *Module) parseDataCountSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}

func (m *Module) parseCodeSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("code %d: %w", i, err)
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("code %d: %w", i, io.ErrUnexpectedEOF)
		}
		fb, err := parseFuncBody(body)
		if err != nil {
			return fmt.Errorf("code %d: %w", i, err)
		}
		m.Code = append(m.Code, fb)
	}
	return nil
}

func parseFuncBody(body []byte) (FuncBody, error) {
	var fb FuncBody
	r := binary.NewReader(bytes.NewReader(body))
	nlocals, err := r.ReadU32()
	if err != nil {
		return fb, err
	}
	var total uint64
	for i := uint32(0); i < nlocals; i++ {
		count, err := r.ReadU32()
		if err != nil {
			return fb, err
		}
		vt, err := readValType(r)
		if err != nil {
			return fb, err
		}
		total += uint64(count)
		if total > uint64(^uint32(0)) {
			return fb, errors.New("too many locals")
		}
		fb.Locals = append(fb.Locals, LocalEntry{Count: count, Type: vt})
	}
	code := body[r.Position():]
	if len(code) == 0 || code[len(code)-1] != OpEnd {
		return fb, errors.New("function body missing end opcode")
	}
	fb.Code = make([]byte, len(code))
	copy(fb.Code, code)
	return fb, nil
}

func (m *Module) parseDataSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var seg DataSegment
		flags, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		seg.Flags = flags
		switch flags {
		case 0:
			if seg.Offset, err = readConstExpr(r); err != nil {
				return fmt.Errorf("data %d: %w", i, err)
			}
		case 1:
		case 2:
			if seg.MemoryIndex, err = r.ReadU32(); err != nil {
				return fmt.Errorf("data %d: %w", i, err)
			}
			if seg.Offset, err = readConstExpr(r); err != nil {
				return fmt.Errorf("data %d: %w", i, err)
			}
		default:
			return fmt.Errorf("data %d: invalid flags %d", i, flags)
		}
		size, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		seg.Data, err = r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("data %d: %w", i, io.ErrUnexpectedEOF)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}
