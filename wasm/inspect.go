package wasm

import (
	"github.com/wippyai/wasm-component-ld/wasm/internal/binary"
)

// ImportRef identifies one import of a core module.
type ImportRef struct {
	Module string
	Name   string
	Kind   byte
}

// CoreModule couples a core module's raw bytes with its parsed form.
// The raw bytes are authoritative: they are what gets embedded into a
// component. The parsed form serves lookups and never feeds back into
// the output.
type CoreModule struct {
	Raw    []byte
	Module *Module

	exports map[string]int
	customs map[string]int
}

// Inspect parses and structurally validates a core module binary and
// returns an indexed view over it.
func Inspect(raw []byte) (*CoreModule, error) {
	m, err := ParseModule(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	cm := &CoreModule{
		Raw:     raw,
		Module:  m,
		exports: make(map[string]int, len(m.Exports)),
		customs: make(map[string]int, len(m.Customs)),
	}
	for i, e := range m.Exports {
		cm.exports[e.Name] = i
	}
	for i, c := range m.Customs {
		// First section with a given name wins lookups.
		if _, ok := cm.customs[c.Name]; !ok {
			cm.customs[c.Name] = i
		}
	}
	return cm, nil
}

// Imports returns one entry per import in binary order.
func (c *CoreModule) Imports() []ImportRef {
	refs := make([]ImportRef, len(c.Module.Imports))
	for i, imp := range c.Module.Imports {
		refs[i] = ImportRef{Module: imp.Module, Name: imp.Name, Kind: imp.Kind}
	}
	return refs
}

// FuncImports returns the function imports in binary order.
func (c *CoreModule) FuncImports() []ImportRef {
	var refs []ImportRef
	for _, imp := range c.Module.Imports {
		if imp.Kind == KindFunc {
			refs = append(refs, ImportRef{Module: imp.Module, Name: imp.Name, Kind: imp.Kind})
		}
	}
	return refs
}

// ImportedFuncType returns the signature of a function import.
func (c *CoreModule) ImportedFuncType(module, name string) (FuncType, bool) {
	for _, imp := range c.Module.Imports {
		if imp.Kind == KindFunc && imp.Module == module && imp.Name == name {
			if int(imp.TypeIndex) >= len(c.Module.Types) {
				return FuncType{}, false
			}
			return c.Module.Types[imp.TypeIndex], true
		}
	}
	return FuncType{}, false
}

// ExportedFuncType returns the signature of an exported function.
func (c *CoreModule) ExportedFuncType(name string) (FuncType, bool) {
	i, ok := c.exports[name]
	if !ok || c.Module.Exports[i].Kind != KindFunc {
		return FuncType{}, false
	}
	return c.Module.FuncTypeAt(c.Module.Exports[i].Index)
}

// HasExport reports whether the module exports the given name,
// regardless of kind.
func (c *CoreModule) HasExport(name string) bool {
	_, ok := c.exports[name]
	return ok
}

// ExportsFunc reports whether the module exports a function with the
// given name.
func (c *CoreModule) ExportsFunc(name string) bool {
	i, ok := c.exports[name]
	return ok && c.Module.Exports[i].Kind == KindFunc
}

// ExportNames returns all export names in binary order.
func (c *CoreModule) ExportNames() []string {
	names := make([]string, len(c.Module.Exports))
	for i, e := range c.Module.Exports {
		names[i] = e.Name
	}
	return names
}

// CustomSection returns the payload of the first custom section with
// the given name.
func (c *CoreModule) CustomSection(name string) ([]byte, bool) {
	i, ok := c.customs[name]
	if !ok {
		return nil, false
	}
	return c.Module.Customs[i].Data, true
}

// HasCustomSection reports whether a custom section with the given
// name is present.
func (c *CoreModule) HasCustomSection(name string) bool {
	_, ok := c.customs[name]
	return ok
}

// AppendCustomSection returns a new binary with the named custom
// section appended after all existing sections. The receiver's raw
// bytes are not modified.
func (c *CoreModule) AppendCustomSection(name string, data []byte) []byte {
	pw := binary.NewWriter()
	pw.WriteName(name)
	pw.WriteBytes(data)

	sw := binary.NewWriter()
	sw.WriteSection(SectionCustom, pw.Bytes())

	out := make([]byte, 0, len(c.Raw)+sw.Len())
	out = append(out, c.Raw...)
	return append(out, sw.Bytes()...)
}
