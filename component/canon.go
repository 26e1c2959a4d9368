package component

import (
	"fmt"
	"io"
)

// Canonical definition kinds.
const (
	CanonLift         byte = 0x00 // followed by 0x00 discriminant
	CanonLower        byte = 0x01 // followed by 0x00 discriminant
	CanonResourceNew  byte = 0x02
	CanonResourceDrop byte = 0x03
	CanonResourceRep  byte = 0x04
)

// Canonical option kinds.
const (
	CanonOptUTF8         byte = 0x00
	CanonOptUTF16        byte = 0x01
	CanonOptCompactUTF16 byte = 0x02
	CanonOptMemory       byte = 0x03
	CanonOptRealloc      byte = 0x04
	CanonOptPostReturn   byte = 0x05
	CanonOptAsync        byte = 0x06
	CanonOptCallback     byte = 0x07
	CanonOptCoreType     byte = 0x08
	CanonOptGc           byte = 0x09
)

// CanonOption is one canonical option; Index is set for the kinds that
// carry one (memory, realloc, post-return).
type CanonOption struct {
	Kind  byte
	Index uint32
}

// CanonDef is a parsed canonical definition.
//
// For lifts, FuncIndex is the core function being lifted and TypeIndex
// the component function type. For lowers, FuncIndex is the component
// function being lowered. Resource canons use ResourceType.
type CanonDef struct {
	Kind         byte
	FuncIndex    uint32
	TypeIndex    uint32
	ResourceType uint32
	Options      []CanonOption
}

// ParseCanonSection parses a canon section. The count must be 1: the
// tools this package interoperates with emit one definition per
// section.
func ParseCanonSection(data []byte) (CanonDef, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readLEB128(r)
	if err != nil {
		return CanonDef{}, fmt.Errorf("read canon count: %w", err)
	}
	if count != 1 {
		return CanonDef{}, fmt.Errorf("expected 1 canon definition per section, got %d", count)
	}
	return parseCanonDef(r)
}

func parseCanonDef(r io.Reader) (CanonDef, error) {
	var def CanonDef
	var err error
	def.Kind, err = readByte(r)
	if err != nil {
		return def, fmt.Errorf("read canon kind: %w", err)
	}

	switch def.Kind {
	case CanonLift:
		disc, err := readByte(r)
		if err != nil {
			return def, fmt.Errorf("read lift discriminant: %w", err)
		}
		if disc != 0x00 {
			return def, fmt.Errorf("unknown lift discriminant 0x%02x", disc)
		}
		def.FuncIndex, err = readLEB128(r)
		if err != nil {
			return def, fmt.Errorf("read core func index: %w", err)
		}
		def.Options, err = readCanonOptions(r)
		if err != nil {
			return def, err
		}
		def.TypeIndex, err = readLEB128(r)
		if err != nil {
			return def, fmt.Errorf("read type index: %w", err)
		}
	case CanonLower:
		disc, err := readByte(r)
		if err != nil {
			return def, fmt.Errorf("read lower discriminant: %w", err)
		}
		if disc != 0x00 {
			return def, fmt.Errorf("unknown lower discriminant 0x%02x", disc)
		}
		def.FuncIndex, err = readLEB128(r)
		if err != nil {
			return def, fmt.Errorf("read func index: %w", err)
		}
		def.Options, err = readCanonOptions(r)
		if err != nil {
			return def, err
		}
	case CanonResourceNew, CanonResourceDrop, CanonResourceRep:
		def.ResourceType, err = readLEB128(r)
		if err != nil {
			return def, fmt.Errorf("read resource type: %w", err)
		}
	default:
		return def, fmt.Errorf("unknown canon kind 0x%02x", def.Kind)
	}
	return def, nil
}

func readCanonOptions(r io.Reader) ([]CanonOption, error) {
	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read option count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("option count %d exceeds maximum", count)
	}
	opts := make([]CanonOption, 0, count)
	for i := uint32(0); i < count; i++ {
		opt, err := readCanonOption(r)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func readCanonOption(r io.Reader) (CanonOption, error) {
	kind, err := readByte(r)
	if err != nil {
		return CanonOption{}, fmt.Errorf("read kind: %w", err)
	}
	opt := CanonOption{Kind: kind}
	switch kind {
	case CanonOptUTF8, CanonOptUTF16, CanonOptCompactUTF16, CanonOptAsync, CanonOptGc:
	case CanonOptMemory, CanonOptRealloc, CanonOptPostReturn, CanonOptCallback, CanonOptCoreType:
		opt.Index, err = readLEB128(r)
		if err != nil {
			return CanonOption{}, fmt.Errorf("read index: %w", err)
		}
	default:
		return CanonOption{}, fmt.Errorf("unknown option kind 0x%02x", kind)
	}
	return opt, nil
}

// StringEncoding returns the string-encoding option, defaulting to
// UTF-8 when none is present.
func (d CanonDef) StringEncoding() byte {
	for _, opt := range d.Options {
		switch opt.Kind {
		case CanonOptUTF8, CanonOptUTF16, CanonOptCompactUTF16:
			return opt.Kind
		}
	}
	return CanonOptUTF8
}

// MemoryIndex returns the memory option index, if present.
func (d CanonDef) MemoryIndex() (uint32, bool) {
	return d.optionIndex(CanonOptMemory)
}

// ReallocIndex returns the realloc option index, if present.
func (d CanonDef) ReallocIndex() (uint32, bool) {
	return d.optionIndex(CanonOptRealloc)
}

func (d CanonDef) optionIndex(kind byte) (uint32, bool) {
	for _, opt := range d.Options {
		if opt.Kind == kind {
			return opt.Index, true
		}
	}
	return 0, false
}
