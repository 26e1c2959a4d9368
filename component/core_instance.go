package component

import (
	"fmt"
	"io"
)

// Core instance definition kinds.
const (
	CoreInstanceInstantiate byte = 0x00
	CoreInstanceFromExports byte = 0x01
)

// Core sort bytes inside from-exports definitions.
const (
	CoreExportFunc   byte = 0x00
	CoreExportTable  byte = 0x01
	CoreExportMemory byte = 0x02
	CoreExportGlobal byte = 0x03
)

// CoreInstance is one entry of a core instance section: either a
// module instantiation or a synthetic instance built from existing
// core exports.
type CoreInstance struct {
	Kind        byte
	ModuleIndex uint32
	Args        []CoreInstanceArg
	Exports     []CoreInstanceExport
}

// CoreInstanceArg names a core instance passed as an instantiation
// argument.
type CoreInstanceArg struct {
	Name          string
	InstanceIndex uint32
}

// CoreInstanceExport is one export of a from-exports instance. Kind is
// one of the CoreExport bytes; Index is into the matching core index
// space.
type CoreInstanceExport struct {
	Name  string
	Kind  byte
	Index uint32
}

// ParseCoreInstanceSection parses a core instance section.
func ParseCoreInstanceSection(data []byte) ([]CoreInstance, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readLEB128(r)
	if err != nil {
		return nil, fmt.Errorf("read instance count: %w", err)
	}
	if count > maxSectionItems {
		return nil, fmt.Errorf("instance count %d exceeds maximum", count)
	}

	instances := make([]CoreInstance, count)
	for i := uint32(0); i < count; i++ {
		inst, err := parseCoreInstance(r)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		instances[i] = inst
	}
	return instances, nil
}

func parseCoreInstance(r io.Reader) (CoreInstance, error) {
	var inst CoreInstance
	var err error
	inst.Kind, err = readByte(r)
	if err != nil {
		return inst, fmt.Errorf("read kind: %w", err)
	}

	switch inst.Kind {
	case CoreInstanceInstantiate:
		inst.ModuleIndex, err = readLEB128(r)
		if err != nil {
			return inst, fmt.Errorf("read module index: %w", err)
		}
		argCount, err := readLEB128(r)
		if err != nil {
			return inst, fmt.Errorf("read arg count: %w", err)
		}
		if argCount > maxSectionItems {
			return inst, fmt.Errorf("arg count %d exceeds maximum", argCount)
		}
		inst.Args = make([]CoreInstanceArg, argCount)
		for i := uint32(0); i < argCount; i++ {
			name, err := readName(r)
			if err != nil {
				return inst, fmt.Errorf("arg %d name: %w", i, err)
			}
			kind, err := readByte(r)
			if err != nil {
				return inst, fmt.Errorf("arg %d kind: %w", i, err)
			}
			// Only instance arguments exist at this layer.
			if kind != CoreSortInstance {
				return inst, fmt.Errorf("arg %d: unknown kind 0x%02x", i, kind)
			}
			idx, err := readLEB128(r)
			if err != nil {
				return inst, fmt.Errorf("arg %d instance index: %w", i, err)
			}
			inst.Args[i] = CoreInstanceArg{Name: name, InstanceIndex: idx}
		}

	case CoreInstanceFromExports:
		exportCount, err := readLEB128(r)
		if err != nil {
			return inst, fmt.Errorf("read export count: %w", err)
		}
		if exportCount > maxSectionItems {
			return inst, fmt.Errorf("export count %d exceeds maximum", exportCount)
		}
		inst.Exports = make([]CoreInstanceExport, exportCount)
		for i := uint32(0); i < exportCount; i++ {
			name, err := readName(r)
			if err != nil {
				return inst, fmt.Errorf("export %d name: %w", i, err)
			}
			kind, err := readByte(r)
			if err != nil {
				return inst, fmt.Errorf("export %d kind: %w", i, err)
			}
			if kind > CoreExportGlobal {
				return inst, fmt.Errorf("export %d: unknown kind 0x%02x", i, kind)
			}
			idx, err := readLEB128(r)
			if err != nil {
				return inst, fmt.Errorf("export %d index: %w", i, err)
			}
			inst.Exports[i] = CoreInstanceExport{Name: name, Kind: kind, Index: idx}
		}

	default:
		return inst, fmt.Errorf("unknown core instance kind 0x%02x", inst.Kind)
	}
	return inst, nil
}
