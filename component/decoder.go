package component

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"
)

// Component binary preamble: the core magic followed by version 0x0d
// and layer 0x01.
var componentPreamble = []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}

// Section IDs at the component layer.
const (
	SectionCustom       byte = 0
	SectionCoreModule   byte = 1
	SectionCoreInstance byte = 2
	SectionCoreType     byte = 3
	SectionComponent    byte = 4
	SectionInstance     byte = 5
	SectionAlias        byte = 6
	SectionType         byte = 7
	SectionCanon        byte = 8
	SectionStart        byte = 9
	SectionImport       byte = 10
	SectionExport       byte = 11
)

// Extern kinds used by import entries and type declarations.
const (
	ExternCoreModule byte = 0x00
	ExternFunc       byte = 0x01
	ExternValue      byte = 0x02
	ExternType       byte = 0x03
	ExternComponent  byte = 0x04
	ExternInstance   byte = 0x05
)

// Sort bytes used by export entries and aliases.
const (
	SortCore      byte = 0x00
	SortFunc      byte = 0x01
	SortValue     byte = 0x02
	SortType      byte = 0x03
	SortComponent byte = 0x04
	SortInstance  byte = 0x05
)

// Core sorts, valid after SortCore.
const (
	CoreSortFunc     byte = 0x00
	CoreSortTable    byte = 0x01
	CoreSortMemory   byte = 0x02
	CoreSortGlobal   byte = 0x03
	CoreSortType     byte = 0x10
	CoreSortModule   byte = 0x11
	CoreSortInstance byte = 0x12
)

// Alias target kinds.
const (
	AliasExport             byte = 0x00
	AliasCoreInstanceExport byte = 0x01
	AliasOuter              byte = 0x02
)

// maxNameLength bounds allocations to prevent OOM from malformed binaries
const maxNameLength = 100000

// maxSectionItems bounds vector counts the same way
const maxSectionItems = 100000

// ExternDesc is an externdesc: the extern kind plus its type index.
// For ExternType, TypeIndex is the eq-bound index; ResourceBound marks
// a sub-resource bound instead.
type ExternDesc struct {
	Kind          byte
	TypeIndex     uint32
	ResourceBound bool
}

// Import is one entry of an import section.
type Import struct {
	Name string
	Desc ExternDesc
}

// Export is one entry of an export section. Desc is the optional
// externdesc ascription.
type Export struct {
	Name      string
	Sort      byte
	CoreSort  byte // valid when Sort == SortCore
	SortIndex uint32
	Desc      *ExternDesc
}

// ParsedAlias is one entry of an alias section.
type ParsedAlias struct {
	Sort     byte
	CoreSort byte // valid when Sort == SortCore
	Target   byte
	// InstanceIndex and Name apply to export targets; OuterCount and
	// OuterIndex to outer targets.
	InstanceIndex uint32
	Name          string
	OuterCount    uint32
	OuterIndex    uint32
}

// StartDef is a component start definition.
type StartDef struct {
	FuncIndex uint32
	Args      []uint32
	Results   uint32
}

// CustomSection is a component-level custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// Component is the decoded structure of a component binary. Index
// spaces are cumulative across sections in binary order, so
// Types[i] is component type index i, CoreModules[i] core module
// index i, and so on.
type Component struct {
	CoreModules   [][]byte
	CoreTypes     [][]byte
	CoreInstances []CoreInstance
	Nested        [][]byte
	Instances     [][]byte
	Aliases       []ParsedAlias
	Types         []Type
	Canons        []CanonDef
	Start         *StartDef
	Imports       []Import
	Exports       []Export
	Customs       []CustomSection
}

// IsComponent reports whether data carries the component preamble. The
// layer field distinguishes components (1) from core modules (0).
func IsComponent(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	if !bytes.Equal(data[:4], componentPreamble[:4]) {
		return false
	}
	return binary.LittleEndian.Uint32(data[4:8]) > 1
}

// Decode parses a component binary into its section contents.
func Decode(data []byte) (*Component, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("component too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], componentPreamble) {
		return nil, fmt.Errorf("invalid component preamble % x", data[:8])
	}

	c := &Component{}
	r := getReader(data[8:])
	defer putReader(r)

	sectionCount := 0
	for {
		id, err := readByte(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}
		sectionCount++
		if sectionCount > maxSectionItems {
			return nil, fmt.Errorf("exceeded maximum section count %d", maxSectionItems)
		}

		size, err := readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("section 0x%02x: read size: %w", id, err)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("section 0x%02x: read %d payload bytes: %w", id, size, err)
		}

		if err := c.addSection(id, payload); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Component) addSection(id byte, payload []byte) error {
	switch id {
	case SectionCustom:
		custom, err := parseCustomSection(payload)
		if err != nil {
			return fmt.Errorf("custom section: %w", err)
		}
		c.Customs = append(c.Customs, custom)
	case SectionCoreModule:
		c.CoreModules = append(c.CoreModules, payload)
	case SectionCoreInstance:
		instances, err := ParseCoreInstanceSection(payload)
		if err != nil {
			return fmt.Errorf("core instance section: %w", err)
		}
		c.CoreInstances = append(c.CoreInstances, instances...)
	case SectionCoreType:
		c.CoreTypes = append(c.CoreTypes, payload)
	case SectionComponent:
		c.Nested = append(c.Nested, payload)
	case SectionInstance:
		c.Instances = append(c.Instances, payload)
	case SectionAlias:
		aliases, err := parseAliasSection(payload)
		if err != nil {
			return fmt.Errorf("alias section: %w", err)
		}
		c.Aliases = append(c.Aliases, aliases...)
	case SectionType:
		section, err := ParseTypeSection(payload)
		if err != nil {
			return fmt.Errorf("type section: %w", err)
		}
		c.Types = append(c.Types, section.Types...)
	case SectionCanon:
		canon, err := ParseCanonSection(payload)
		if err != nil {
			return fmt.Errorf("canon section: %w", err)
		}
		c.Canons = append(c.Canons, canon)
	case SectionStart:
		if c.Start != nil {
			return fmt.Errorf("duplicate start section")
		}
		start, err := parseStartSection(payload)
		if err != nil {
			return fmt.Errorf("start section: %w", err)
		}
		c.Start = start
	case SectionImport:
		imports, err := decodeImports(payload)
		if err != nil {
			return fmt.Errorf("import section: %w", err)
		}
		c.Imports = append(c.Imports, imports...)
	case SectionExport:
		exports, err := decodeExports(payload)
		if err != nil {
			return fmt.Errorf("export section: %w", err)
		}
		c.Exports = append(c.Exports, exports...)
	default:
		return fmt.Errorf("unknown section id 0x%02x", id)
	}
	return nil
}

// CustomSection returns the first custom section with the given name.
func (c *Component) CustomSection(name string) ([]byte, bool) {
	for _, cs := range c.Customs {
		if cs.Name == name {
			return cs.Data, true
		}
	}
	return nil, false
}

// ExportNames returns export names in section order.
func (c *Component) ExportNames() []string {
	names := make([]string, len(c.Exports))
	for i, e := range c.Exports {
		names[i] = e.Name
	}
	return names
}

func decodeImports(data []byte) ([]Import, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read import count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("import count %d exceeds maximum", count)
	}

	imports := make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		imp, err := decodeImport(r)
		if err != nil {
			return nil, fmt.Errorf("import %d: %w", i, err)
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

func decodeImport(r io.Reader) (Import, error) {
	var imp Import
	nameKind, err := readByte(r)
	if err != nil {
		return imp, fmt.Errorf("read name kind: %w", err)
	}
	if nameKind > 0x01 {
		return imp, fmt.Errorf("unknown import name kind 0x%02x", nameKind)
	}
	imp.Name, err = readName(r)
	if err != nil {
		return imp, fmt.Errorf("read name: %w", err)
	}
	imp.Desc, err = readExternDesc(r)
	if err != nil {
		return imp, err
	}
	return imp, nil
}

func readExternDesc(r io.Reader) (ExternDesc, error) {
	var desc ExternDesc
	var err error
	desc.Kind, err = readByte(r)
	if err != nil {
		return desc, fmt.Errorf("read extern kind: %w", err)
	}
	switch desc.Kind {
	case ExternCoreModule:
		// 0x00 is followed by 0x11 before the type index.
		extra, err := readByte(r)
		if err != nil {
			return desc, fmt.Errorf("read core module marker: %w", err)
		}
		if extra != CoreSortModule {
			return desc, fmt.Errorf("expected core module marker 0x11, got 0x%02x", extra)
		}
		desc.TypeIndex, err = readLEB128(r)
		if err != nil {
			return desc, fmt.Errorf("read type index: %w", err)
		}
	case ExternFunc, ExternValue, ExternComponent, ExternInstance:
		desc.TypeIndex, err = readLEB128(r)
		if err != nil {
			return desc, fmt.Errorf("read type index: %w", err)
		}
	case ExternType:
		bound, err := readByte(r)
		if err != nil {
			return desc, fmt.Errorf("read type bound: %w", err)
		}
		switch bound {
		case 0x00:
			desc.TypeIndex, err = readLEB128(r)
			if err != nil {
				return desc, fmt.Errorf("read bound type index: %w", err)
			}
		case 0x01:
			desc.ResourceBound = true
		default:
			return desc, fmt.Errorf("unknown type bound 0x%02x", bound)
		}
	default:
		return desc, fmt.Errorf("unknown extern kind 0x%02x", desc.Kind)
	}
	return desc, nil
}

func decodeExports(data []byte) ([]Export, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read export count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("export count %d exceeds maximum", count)
	}

	exports := make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		exp, err := decodeExport(r)
		if err != nil {
			return nil, fmt.Errorf("export %d: %w", i, err)
		}
		exports = append(exports, exp)
	}
	return exports, nil
}

func decodeExport(r io.Reader) (Export, error) {
	var exp Export
	nameKind, err := readByte(r)
	if err != nil {
		return exp, fmt.Errorf("read name kind: %w", err)
	}
	if nameKind > 0x01 {
		return exp, fmt.Errorf("unknown export name kind 0x%02x", nameKind)
	}
	exp.Name, err = readName(r)
	if err != nil {
		return exp, fmt.Errorf("read name: %w", err)
	}

	exp.Sort, err = readByte(r)
	if err != nil {
		return exp, fmt.Errorf("read sort: %w", err)
	}
	if exp.Sort == SortCore {
		exp.CoreSort, err = readByte(r)
		if err != nil {
			return exp, fmt.Errorf("read core sort: %w", err)
		}
	} else if exp.Sort > SortInstance {
		return exp, fmt.Errorf("unknown sort 0x%02x", exp.Sort)
	}
	exp.SortIndex, err = readLEB128(r)
	if err != nil {
		return exp, fmt.Errorf("read sort index: %w", err)
	}

	// Optional externdesc ascription.
	hasDesc, err := readByte(r)
	if err != nil {
		return exp, fmt.Errorf("read ascription presence: %w", err)
	}
	switch hasDesc {
	case 0x00:
	case 0x01:
		desc, err := readExternDesc(r)
		if err != nil {
			return exp, fmt.Errorf("read ascription: %w", err)
		}
		exp.Desc = &desc
	default:
		return exp, fmt.Errorf("invalid ascription presence byte 0x%02x", hasDesc)
	}
	return exp, nil
}

func parseAliasSection(data []byte) ([]ParsedAlias, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read alias count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("alias count %d exceeds maximum", count)
	}

	aliases := make([]ParsedAlias, 0, count)
	for i := uint32(0); i < count; i++ {
		alias, err := parseAlias(r)
		if err != nil {
			return nil, fmt.Errorf("alias %d: %w", i, err)
		}
		aliases = append(aliases, *alias)
	}
	return aliases, nil
}

func parseAlias(r io.Reader) (*ParsedAlias, error) {
	a := &ParsedAlias{}
	var err error

	a.Sort, err = readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read sort: %w", err)
	}
	if a.Sort == SortCore {
		a.CoreSort, err = readByte(r)
		if err != nil {
			return nil, fmt.Errorf("read core sort: %w", err)
		}
	} else if a.Sort > SortInstance {
		return nil, fmt.Errorf("unknown sort 0x%02x", a.Sort)
	}

	a.Target, err = readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read target kind: %w", err)
	}
	switch a.Target {
	case AliasExport, AliasCoreInstanceExport:
		a.InstanceIndex, err = readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("read instance index: %w", err)
		}
		a.Name, err = readName(r)
		if err != nil {
			return nil, fmt.Errorf("read export name: %w", err)
		}
	case AliasOuter:
		a.OuterCount, err = readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("read outer count: %w", err)
		}
		a.OuterIndex, err = readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("read outer index: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown alias target 0x%02x", a.Target)
	}
	return a, nil
}

func parseStartSection(data []byte) (*StartDef, error) {
	r := getReader(data)
	defer putReader(r)

	s := &StartDef{}
	var err error
	s.FuncIndex, err = readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read func index: %w", err)
	}
	argCount, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read arg count: %w", err)
	}
	if argCount > maxSectionItems {
		return nil, fmt.Errorf("arg count %d exceeds maximum", argCount)
	}
	for i := uint32(0); i < argCount; i++ {
		arg, err := readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("read arg %d: %w", i, err)
		}
		s.Args = append(s.Args, arg)
	}
	s.Results, err = readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read result count: %w", err)
	}
	return s, nil
}

func parseCustomSection(data []byte) (CustomSection, error) {
	r := getReader(data)
	defer putReader(r)

	name, err := readName(r)
	if err != nil {
		return CustomSection{}, fmt.Errorf("read name: %w", err)
	}
	rest := make([]byte, r.Len())
	if _, err := io.ReadFull(r, rest); err != nil {
		return CustomSection{}, fmt.Errorf("read data: %w", err)
	}
	return CustomSection{Name: name, Data: rest}, nil
}

var readerPool = sync.Pool{
	New: func() any {
		return bytes.NewReader(nil)
	},
}

func getReader(data []byte) *bytes.Reader {
	r := readerPool.Get().(*bytes.Reader)
	r.Reset(data)
	return r
}

func putReader(r *bytes.Reader) {
	r.Reset(nil)
	readerPool.Put(r)
}

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readLEB128 reads an unsigned LEB128 u32.
func readLEB128(r io.Reader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift >= 32 {
			return 0, fmt.Errorf("LEB128 value exceeds 32 bits")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// readSLEB128 reads a signed LEB128 value, wide enough for var_s33.
func readSLEB128(r io.Reader) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, fmt.Errorf("SLEB128 value exceeds 64 bits")
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

func readName(r io.Reader) (string, error) {
	length, err := readLEB128(r)
	if err != nil {
		return "", fmt.Errorf("read name length: %w", err)
	}
	if length > maxNameLength {
		return "", fmt.Errorf("name too long: %d (max %d)", length, maxNameLength)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read name bytes: %w", err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("name is not valid UTF-8")
	}
	return string(buf), nil
}
