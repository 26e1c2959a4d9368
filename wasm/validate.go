package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// Validate checks the module for structural validity: index bounds,
// limits ordering, export name uniqueness, and the start function
// signature. Function bodies are not type-checked; DeepValidate covers
// that.
func (m *Module) Validate() error {
	if err := m.validateImports(); err != nil {
		return err
	}
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateDefinitions(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateSegments(); err != nil {
		return err
	}
	return nil
}

func (m *Module) validateImports() error {
	for i, imp := range m.Imports {
		switch imp.Kind {
		case KindFunc, KindTag:
			if int(imp.TypeIndex) >= len(m.Types) {
				return fmt.Errorf("wasm: import %d (%s.%s): type index %d out of bounds", i, imp.Module, imp.Name, imp.TypeIndex)
			}
			if imp.Kind == KindTag && len(m.Types[imp.TypeIndex].Results) != 0 {
				return fmt.Errorf("wasm: import %d (%s.%s): tag type must have no results", i, imp.Module, imp.Name)
			}
		case KindTable:
			if err := validateLimits(imp.Table.Limits, false); err != nil {
				return fmt.Errorf("wasm: import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		case KindMemory:
			if err := validateLimits(imp.Memory.Limits, true); err != nil {
				return fmt.Errorf("wasm: import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		case KindGlobal:
		default:
			return fmt.Errorf("wasm: import %d (%s.%s): invalid kind %d", i, imp.Module, imp.Name, imp.Kind)
		}
	}
	return nil
}

func (m *Module) validateTypeIndices() error {
	for i, tidx := range m.Funcs {
		if int(tidx) >= len(m.Types) {
			return fmt.Errorf("wasm: function %d: type index %d out of bounds (%d types)", i, tidx, len(m.Types))
		}
	}
	for i, t := range m.Tags {
		if int(t.TypeIndex) >= len(m.Types) {
			return fmt.Errorf("wasm: tag %d: type index %d out of bounds", i, t.TypeIndex)
		}
		if len(m.Types[t.TypeIndex].Results) != 0 {
			return fmt.Errorf("wasm: tag %d: tag type must have no results", i)
		}
	}
	return nil
}

func (m *Module) validateDefinitions() error {
	for i, tt := range m.Tables {
		if err := validateLimits(tt.Limits, false); err != nil {
			return fmt.Errorf("wasm: table %d: %w", i, err)
		}
	}
	for i, mt := range m.Memories {
		if err := validateLimits(mt.Limits, true); err != nil {
			return fmt.Errorf("wasm: memory %d: %w", i, err)
		}
	}
	for i, g := range m.Globals {
		if len(g.Init) == 0 || g.Init[len(g.Init)-1] != OpEnd {
			return fmt.Errorf("wasm: global %d: initializer missing end opcode", i)
		}
	}
	return nil
}

func validateLimits(l Limits, memory bool) error {
	if l.HasMax && l.Max < l.Min {
		return fmt.Errorf("limits minimum %d exceeds maximum %d", l.Min, l.Max)
	}
	if memory {
		pages := MemoryMaxPages32
		if l.Memory64 {
			pages = MemoryMaxPages64
		}
		if l.Min > pages {
			return fmt.Errorf("memory minimum %d exceeds %d pages", l.Min, pages)
		}
		if l.HasMax && l.Max > pages {
			return fmt.Errorf("memory maximum %d exceeds %d pages", l.Max, pages)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]struct{}, len(m.Exports))
	for i, e := range m.Exports {
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("wasm: export %d: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = struct{}{}

		var space int
		switch e.Kind {
		case KindFunc:
			space = m.NumFuncs()
		case KindTable:
			space = m.NumTables()
		case KindMemory:
			space = m.NumMemories()
		case KindGlobal:
			space = m.NumGlobals()
		case KindTag:
			space = m.NumTags()
		default:
			return fmt.Errorf("wasm: export %d (%s): invalid kind %d", i, e.Name, e.Kind)
		}
		if int(e.Index) >= space {
			return fmt.Errorf("wasm: export %d (%s): index %d out of bounds (%d entries)", i, e.Name, e.Index, space)
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft, ok := m.FuncTypeAt(*m.Start)
	if !ok {
		return fmt.Errorf("wasm: start function index %d out of bounds", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("wasm: start function must have type () -> (), got %s", ft)
	}
	return nil
}

func (m *Module) validateSegments() error {
	for i, e := range m.Elements {
		if e.Flags&0x01 == 0 && int(e.TableIndex) >= m.NumTables() {
			return fmt.Errorf("wasm: element %d: table index %d out of bounds", i, e.TableIndex)
		}
		for _, idx := range e.FuncIdxs {
			if int(idx) >= m.NumFuncs() {
				return fmt.Errorf("wasm: element %d: function index %d out of bounds", i, idx)
			}
		}
	}
	for i, seg := range m.Data {
		if seg.Flags != 1 && int(seg.MemoryIndex) >= m.NumMemories() {
			return fmt.Errorf("wasm: data %d: memory index %d out of bounds", i, seg.MemoryIndex)
		}
	}
	return nil
}

// DeepValidate compiles the binary with the wazero interpreter,
// applying full spec validation including type-checking of every
// function body. It is considerably more expensive than Validate and
// is gated behind a flag in the driver.
func DeepValidate(ctx context.Context, raw []byte) error {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, raw)
	if err != nil {
		return fmt.Errorf("wasm: %w", err)
	}
	return compiled.Close(ctx)
}
