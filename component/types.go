package component

import (
	"bytes"
	"fmt"
	"io"
)

// Component-level type grammar, following the Component Model binary
// format. The decoder accepts the full defvaltype surface so inspection
// works on components produced by other toolchains; the encoder in this
// package only ever emits primitives, type index references, function
// types, and instance types.

// PrimType is a primitive value type byte.
type PrimType byte

const (
	PrimBool   PrimType = 0x7f
	PrimS8     PrimType = 0x7e
	PrimU8     PrimType = 0x7d
	PrimS16    PrimType = 0x7c
	PrimU16    PrimType = 0x7b
	PrimS32    PrimType = 0x7a
	PrimU32    PrimType = 0x79
	PrimS64    PrimType = 0x78
	PrimU64    PrimType = 0x77
	PrimF32    PrimType = 0x76
	PrimF64    PrimType = 0x75
	PrimChar   PrimType = 0x74
	PrimString PrimType = 0x73
)

func (p PrimType) String() string {
	switch p {
	case PrimBool:
		return "bool"
	case PrimS8:
		return "s8"
	case PrimU8:
		return "u8"
	case PrimS16:
		return "s16"
	case PrimU16:
		return "u16"
	case PrimS32:
		return "s32"
	case PrimU32:
		return "u32"
	case PrimS64:
		return "s64"
	case PrimU64:
		return "u64"
	case PrimF32:
		return "f32"
	case PrimF64:
		return "f64"
	case PrimChar:
		return "char"
	case PrimString:
		return "string"
	}
	return fmt.Sprintf("prim(0x%02x)", byte(p))
}

// Type is any entry of the component type section.
type Type interface {
	isType()
}

// ValType is a value type as it appears inside function signatures.
type ValType interface {
	isValType()
}

// PrimValType is a primitive value type.
type PrimValType struct {
	Type PrimType
}

func (PrimValType) isValType() {}
func (PrimValType) isType()    {}

// TypeIndexRef references a type by index (var_s33 encoded).
type TypeIndexRef struct {
	Index uint32
}

func (TypeIndexRef) isValType() {}
func (TypeIndexRef) isType()    {}

// ListType is list<T>.
type ListType struct {
	Elem ValType
}

func (ListType) isValType() {}
func (ListType) isType()    {}

// TupleType is tuple<T...>.
type TupleType struct {
	Types []ValType
}

func (TupleType) isValType() {}
func (TupleType) isType()    {}

// OptionType is option<T>.
type OptionType struct {
	Type ValType
}

func (OptionType) isValType() {}
func (OptionType) isType()    {}

// ResultType is result<OK, Err>; either side may be absent.
type ResultType struct {
	OK  *ValType
	Err *ValType
}

func (ResultType) isValType() {}
func (ResultType) isType()    {}

// RecordType is a record with named fields.
type RecordType struct {
	Fields []FieldType
}

func (RecordType) isValType() {}
func (RecordType) isType()    {}

// FieldType is one record field.
type FieldType struct {
	Name string
	Type ValType
}

// VariantType is a tagged union.
type VariantType struct {
	Cases []CaseType
}

func (VariantType) isValType() {}
func (VariantType) isType()    {}

// CaseType is one variant case; Type is nil for payload-free cases.
type CaseType struct {
	Name    string
	Type    *ValType
	Refines *uint32
}

// FlagsType is a bitset of named flags.
type FlagsType struct {
	Names []string
}

func (FlagsType) isValType() {}
func (FlagsType) isType()    {}

// EnumType is a payload-free variant.
type EnumType struct {
	Cases []string
}

func (EnumType) isValType() {}
func (EnumType) isType()    {}

// OwnType is an owned resource handle.
type OwnType struct {
	TypeIndex uint32
}

func (OwnType) isValType() {}
func (OwnType) isType()    {}

// BorrowType is a borrowed resource handle.
type BorrowType struct {
	TypeIndex uint32
}

func (BorrowType) isValType() {}
func (BorrowType) isType()    {}

// FuncType is a component function type.
//
// Binary format: 0x40 paramlist resultlist. The resultlist is a
// discriminated union, not a vector: 0x00 followed by one valtype, or
// 0x01 0x00 for no result.
type FuncType struct {
	Params []Param
	Result ValType // nil when the function returns nothing
}

func (FuncType) isType() {}

// Param is a named function parameter.
type Param struct {
	Name string
	Type ValType
}

// InstanceType is an instance type: a list of declarations.
type InstanceType struct {
	Decls []InstanceDecl
}

func (InstanceType) isType() {}

// ComponentType is a component type: instance declarations plus
// imports.
type ComponentType struct {
	Decls []InstanceDecl
}

func (ComponentType) isType() {}

// Declaration kinds shared by instance and component types. DeclImport
// is only valid inside component types.
const (
	DeclCoreType byte = 0x00
	DeclType     byte = 0x01
	DeclAlias    byte = 0x02
	DeclImport   byte = 0x03
	DeclExport   byte = 0x04
)

// InstanceDecl is one declaration inside an instance or component
// type. Exactly one of Type, Alias, Import, or Export is set according
// to Kind; core type decls keep their raw bytes.
type InstanceDecl struct {
	Kind     byte
	Type     Type
	CoreType []byte
	Alias    *ParsedAlias
	Import   *ExportDecl
	Export   *ExportDecl
}

// ExportDecl declares an import or export inside a type. Both share
// the externname + externdesc shape.
type ExportDecl struct {
	Name       string
	ExternKind byte
	TypeIndex  uint32
}

// TypeSection is a parsed type section (section 7).
type TypeSection struct {
	Types []Type
}

// ParseTypeSection parses a type section.
func ParseTypeSection(data []byte) (*TypeSection, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read type count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("type count %d exceeds maximum", count)
	}

	section := &TypeSection{Types: make([]Type, 0, count)}
	for i := uint32(0); i < count; i++ {
		typ, err := parseType(r)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", i, err)
		}
		section.Types = append(section.Types, typ)
	}
	return section, nil
}

func parseType(r io.Reader) (Type, error) {
	b, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read type form: %w", err)
	}
	switch b {
	case 0x40:
		return parseFuncType(r)
	case 0x42:
		return parseInstanceType(r)
	case 0x41:
		return parseComponentType(r)
	default:
		return parseValTypeAfter(b, r)
	}
}

func parseFuncType(r io.Reader) (FuncType, error) {
	var ft FuncType
	paramCount, err := readLEB128(r)
	if err != nil {
		return ft, fmt.Errorf("read param count: %w", err)
	}
	if paramCount > maxSectionItems {
		return ft, fmt.Errorf("param count %d exceeds maximum", paramCount)
	}
	for i := uint32(0); i < paramCount; i++ {
		name, err := readName(r)
		if err != nil {
			return ft, fmt.Errorf("param %d name: %w", i, err)
		}
		vt, err := parseValType(r)
		if err != nil {
			return ft, fmt.Errorf("param %d type: %w", i, err)
		}
		ft.Params = append(ft.Params, Param{Name: name, Type: vt})
	}

	// resultlist is a discriminated union, not a vector.
	disc, err := readByte(r)
	if err != nil {
		return ft, fmt.Errorf("read result discriminant: %w", err)
	}
	switch disc {
	case 0x00:
		vt, err := parseValType(r)
		if err != nil {
			return ft, fmt.Errorf("read result type: %w", err)
		}
		ft.Result = vt
	case 0x01:
		end, err := readByte(r)
		if err != nil {
			return ft, fmt.Errorf("read result end marker: %w", err)
		}
		if end != 0x00 {
			return ft, fmt.Errorf("expected 0x00 after 0x01 in resultlist, got 0x%02x", end)
		}
	default:
		return ft, fmt.Errorf("unknown resultlist discriminant 0x%02x", disc)
	}
	return ft, nil
}

func parseInstanceType(r io.Reader) (InstanceType, error) {
	decls, err := parseDecls(r, false)
	return InstanceType{Decls: decls}, err
}

func parseComponentType(r io.Reader) (ComponentType, error) {
	decls, err := parseDecls(r, true)
	return ComponentType{Decls: decls}, err
}

func parseDecls(r io.Reader, allowImports bool) ([]InstanceDecl, error) {
	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read decl count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("decl count %d exceeds maximum", count)
	}
	var decls []InstanceDecl
	for i := uint32(0); i < count; i++ {
		decl, err := parseDecl(r, allowImports)
		if err != nil {
			return nil, fmt.Errorf("decl %d: %w", i, err)
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func parseDecl(r io.Reader, allowImports bool) (InstanceDecl, error) {
	kind, err := readByte(r)
	if err != nil {
		return InstanceDecl{}, fmt.Errorf("read kind: %w", err)
	}
	switch kind {
	case DeclCoreType:
		data, err := readCoreTypeBytes(r)
		if err != nil {
			return InstanceDecl{}, fmt.Errorf("read core type: %w", err)
		}
		return InstanceDecl{Kind: kind, CoreType: data}, nil
	case DeclType:
		typ, err := parseType(r)
		if err != nil {
			return InstanceDecl{}, fmt.Errorf("read type: %w", err)
		}
		return InstanceDecl{Kind: kind, Type: typ}, nil
	case DeclAlias:
		alias, err := parseAlias(r)
		if err != nil {
			return InstanceDecl{}, fmt.Errorf("read alias: %w", err)
		}
		return InstanceDecl{Kind: kind, Alias: alias}, nil
	case DeclImport:
		if !allowImports {
			return InstanceDecl{}, fmt.Errorf("import decl is only valid in component types")
		}
		imp, err := parseExportDecl(r)
		if err != nil {
			return InstanceDecl{}, fmt.Errorf("read import: %w", err)
		}
		return InstanceDecl{Kind: kind, Import: &imp}, nil
	case DeclExport:
		export, err := parseExportDecl(r)
		if err != nil {
			return InstanceDecl{}, fmt.Errorf("read export: %w", err)
		}
		return InstanceDecl{Kind: kind, Export: &export}, nil
	default:
		return InstanceDecl{}, fmt.Errorf("unknown decl kind 0x%02x", kind)
	}
}

func parseExportDecl(r io.Reader) (ExportDecl, error) {
	var ed ExportDecl
	nameKind, err := readByte(r)
	if err != nil {
		return ed, fmt.Errorf("read name kind: %w", err)
	}
	if nameKind > 0x01 {
		return ed, fmt.Errorf("unknown name kind 0x%02x", nameKind)
	}
	ed.Name, err = readName(r)
	if err != nil {
		return ed, fmt.Errorf("read name: %w", err)
	}
	desc, err := readExternDesc(r)
	if err != nil {
		return ed, err
	}
	ed.ExternKind = desc.Kind
	ed.TypeIndex = desc.TypeIndex
	return ed, nil
}

// readCoreTypeBytes skips a core type declaration, keeping its raw
// bytes. Only core function types (0x60) appear in practice.
func readCoreTypeBytes(r io.Reader) ([]byte, error) {
	form, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if form != 0x60 {
		return nil, fmt.Errorf("unsupported core type form 0x%02x", form)
	}
	buf := []byte{form}
	for vec := 0; vec < 2; vec++ {
		count, err := readLEB128(r)
		if err != nil {
			return nil, err
		}
		buf = appendLEB128(buf, count)
		for i := uint32(0); i < count; i++ {
			b, err := readByte(r)
			if err != nil {
				return nil, err
			}
			buf = append(buf, b)
		}
	}
	return buf, nil
}

// parseValType reads a value type: a primitive byte, a defined-type
// constructor, or a var_s33 type index. Primitives are checked first,
// then constructors, then everything else reads as a signed index.
func parseValType(r io.Reader) (ValType, error) {
	b, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read val type byte: %w", err)
	}
	return parseValTypeAfter(b, r)
}

func parseValTypeAfter(b byte, r io.Reader) (ValType, error) {
	if b >= 0x73 && b <= 0x7f {
		return PrimValType{Type: PrimType(b)}, nil
	}
	switch b {
	case 0x72:
		return parseRecordType(r)
	case 0x71:
		return parseVariantType(r)
	case 0x70:
		elem, err := parseValType(r)
		if err != nil {
			return nil, err
		}
		return ListType{Elem: elem}, nil
	case 0x6f:
		return parseTupleType(r)
	case 0x6e:
		return parseFlagsType(r)
	case 0x6d:
		return parseEnumType(r)
	case 0x6b:
		elem, err := parseValType(r)
		if err != nil {
			return nil, err
		}
		return OptionType{Type: elem}, nil
	case 0x6a:
		return parseResultType(r)
	case 0x69:
		idx, err := readLEB128(r)
		if err != nil {
			return nil, err
		}
		return OwnType{TypeIndex: idx}, nil
	case 0x68:
		idx, err := readLEB128(r)
		if err != nil {
			return nil, err
		}
		return BorrowType{TypeIndex: idx}, nil
	}

	// var_s33 type index; the first byte is part of the encoding.
	mr := io.MultiReader(bytes.NewReader([]byte{b}), r)
	idx, err := readSLEB128(mr)
	if err != nil {
		return nil, fmt.Errorf("read type index: %w", err)
	}
	if idx < 0 {
		return nil, fmt.Errorf("negative type index %d", idx)
	}
	return TypeIndexRef{Index: uint32(idx)}, nil
}

func parseRecordType(r io.Reader) (RecordType, error) {
	var rt RecordType
	count, err := readLEB128(r)
	if err != nil {
		return rt, err
	}
	if count > maxSectionItems {
		return rt, fmt.Errorf("field count %d exceeds maximum", count)
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return rt, fmt.Errorf("field %d name: %w", i, err)
		}
		vt, err := parseValType(r)
		if err != nil {
			return rt, fmt.Errorf("field %d type: %w", i, err)
		}
		rt.Fields = append(rt.Fields, FieldType{Name: name, Type: vt})
	}
	return rt, nil
}

func parseVariantType(r io.Reader) (VariantType, error) {
	var vt VariantType
	count, err := readLEB128(r)
	if err != nil {
		return vt, err
	}
	if count > maxSectionItems {
		return vt, fmt.Errorf("case count %d exceeds maximum", count)
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return vt, fmt.Errorf("case %d name: %w", i, err)
		}
		c := CaseType{Name: name}

		hasType, err := readByte(r)
		if err != nil {
			return vt, fmt.Errorf("case %d: %w", i, err)
		}
		if hasType == 0x01 {
			t, err := parseValType(r)
			if err != nil {
				return vt, fmt.Errorf("case %d type: %w", i, err)
			}
			c.Type = &t
		} else if hasType != 0x00 {
			return vt, fmt.Errorf("case %d: invalid type presence byte 0x%02x", i, hasType)
		}

		hasRefines, err := readByte(r)
		if err != nil {
			return vt, fmt.Errorf("case %d: %w", i, err)
		}
		if hasRefines == 0x01 {
			idx, err := readLEB128(r)
			if err != nil {
				return vt, fmt.Errorf("case %d refines: %w", i, err)
			}
			c.Refines = &idx
		} else if hasRefines != 0x00 {
			return vt, fmt.Errorf("case %d: invalid refines presence byte 0x%02x", i, hasRefines)
		}

		vt.Cases = append(vt.Cases, c)
	}
	return vt, nil
}

func parseTupleType(r io.Reader) (TupleType, error) {
	var tt TupleType
	count, err := readLEB128(r)
	if err != nil {
		return tt, err
	}
	if count > maxSectionItems {
		return tt, fmt.Errorf("tuple arity %d exceeds maximum", count)
	}
	for i := uint32(0); i < count; i++ {
		vt, err := parseValType(r)
		if err != nil {
			return tt, fmt.Errorf("element %d: %w", i, err)
		}
		tt.Types = append(tt.Types, vt)
	}
	return tt, nil
}

func parseFlagsType(r io.Reader) (FlagsType, error) {
	var ft FlagsType
	count, err := readLEB128(r)
	if err != nil {
		return ft, err
	}
	if count > maxSectionItems {
		return ft, fmt.Errorf("flag count %d exceeds maximum", count)
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return ft, fmt.Errorf("flag %d: %w", i, err)
		}
		ft.Names = append(ft.Names, name)
	}
	return ft, nil
}

func parseEnumType(r io.Reader) (EnumType, error) {
	var et EnumType
	count, err := readLEB128(r)
	if err != nil {
		return et, err
	}
	if count > maxSectionItems {
		return et, fmt.Errorf("enum case count %d exceeds maximum", count)
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return et, fmt.Errorf("case %d: %w", i, err)
		}
		et.Cases = append(et.Cases, name)
	}
	return et, nil
}

func parseResultType(r io.Reader) (ResultType, error) {
	var rt ResultType
	hasOK, err := readByte(r)
	if err != nil {
		return rt, err
	}
	if hasOK == 0x01 {
		t, err := parseValType(r)
		if err != nil {
			return rt, fmt.Errorf("ok type: %w", err)
		}
		rt.OK = &t
	} else if hasOK != 0x00 {
		return rt, fmt.Errorf("invalid ok presence byte 0x%02x", hasOK)
	}

	hasErr, err := readByte(r)
	if err != nil {
		return rt, err
	}
	if hasErr == 0x01 {
		t, err := parseValType(r)
		if err != nil {
			return rt, fmt.Errorf("err type: %w", err)
		}
		rt.Err = &t
	} else if hasErr != 0x00 {
		return rt, fmt.Errorf("invalid err presence byte 0x%02x", hasErr)
	}
	return rt, nil
}
