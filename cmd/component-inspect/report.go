package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/wippyai/wasm-component-ld/component"
	"github.com/wippyai/wasm-component-ld/wasm"
	"github.com/wippyai/wasm-component-ld/witmeta"
)

// report is everything the inspector shows about one component binary.
type report struct {
	filename  string
	size      int
	modules   []moduleInfo
	imports   []string
	exports   []string
	world     *witmeta.World
	worldText string
	customs   []customInfo
}

type moduleInfo struct {
	index   int
	size    int
	imports []string
	exports []string
}

type customInfo struct {
	name string
	size int
}

func loadReport(filename string) (*report, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if !component.IsComponent(data) {
		return nil, fmt.Errorf("%s is not a component binary", filename)
	}
	comp, err := component.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	r := &report{filename: filename, size: len(data)}

	for i, raw := range comp.CoreModules {
		mi := moduleInfo{index: i, size: len(raw)}
		core, err := wasm.Inspect(raw)
		if err != nil {
			// Still listed; the detail view carries the failure.
			mi.imports = []string{fmt.Sprintf("(unreadable: %v)", err)}
			r.modules = append(r.modules, mi)
			continue
		}
		for _, imp := range core.Imports() {
			mi.imports = append(mi.imports, imp.Module+"."+imp.Name+" ("+kindName(imp.Kind)+")")
		}
		for _, e := range core.Module.Exports {
			mi.exports = append(mi.exports, e.Name+" ("+kindName(e.Kind)+")")
		}
		r.modules = append(r.modules, mi)
	}

	for _, imp := range comp.Imports {
		r.imports = append(r.imports, imp.Name)
	}
	r.exports = comp.ExportNames()

	if text, ok := comp.CustomSection(component.MetadataSectionName); ok {
		r.worldText = string(text)
		if w, err := witmeta.ParseWorld(r.worldText); err == nil {
			r.world = w
		}
	}
	for _, cs := range comp.Customs {
		// The metadata section surfaces as the world view.
		if cs.Name == component.MetadataSectionName {
			continue
		}
		r.customs = append(r.customs, customInfo{name: cs.Name, size: len(cs.Data)})
	}

	return r, nil
}

func kindName(kind byte) string {
	switch kind {
	case wasm.KindFunc:
		return "func"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	}
	return fmt.Sprintf("kind %d", kind)
}

// exportFunc looks the export up in the embedded world.
func (r *report) exportFunc(name string) (witmeta.WorldFunc, bool) {
	if r.world == nil {
		return witmeta.WorldFunc{}, false
	}
	for _, f := range r.world.Exports {
		if f.Name == name {
			return f, true
		}
	}
	return witmeta.WorldFunc{}, false
}

// importFuncs returns the declared functions of an imported namespace,
// nil when the world does not describe it.
func (r *report) importFuncs(name string) []witmeta.WorldFunc {
	if r.world == nil {
		return nil
	}
	for _, iface := range r.world.Imports {
		if iface.Name == name {
			return iface.Funcs
		}
	}
	return nil
}

// exportSignature renders the export for plain output; a component
// without a world falls back to the bare name.
func (r *report) exportSignature(name string) string {
	if f, ok := r.exportFunc(name); ok {
		return signature(f)
	}
	return name
}

func (r *report) importInterface(name string) []string {
	funcs := r.importFuncs(name)
	if funcs == nil {
		return nil
	}
	sigs := make([]string, len(funcs))
	for i, f := range funcs {
		sigs[i] = signature(f)
	}
	return sigs
}

func signature(f witmeta.WorldFunc) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(": func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Name != "" {
			b.WriteString(p.Name)
			b.WriteString(": ")
		}
		b.WriteString(witmeta.TypeString(p.Type))
	}
	b.WriteByte(')')
	if f.Result != nil {
		b.WriteString(" -> ")
		b.WriteString(witmeta.TypeString(f.Result))
	}
	return b.String()
}

func (r *report) dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Component: %s (%d bytes)\n", r.filename, r.size)
	fmt.Fprintf(&b, "Core modules: %d\n", len(r.modules))
	fmt.Fprintf(&b, "Imports: %d\n", len(r.imports))
	fmt.Fprintf(&b, "Exports: %d\n", len(r.exports))

	for _, m := range r.modules {
		fmt.Fprintf(&b, "\ncore module #%d (%d bytes)\n", m.index, m.size)
		if len(m.imports) > 0 {
			b.WriteString("  imports:\n")
			for _, s := range m.imports {
				b.WriteString("    " + s + "\n")
			}
		}
		if len(m.exports) > 0 {
			b.WriteString("  exports:\n")
			for _, s := range m.exports {
				b.WriteString("    " + s + "\n")
			}
		}
	}

	if len(r.imports) > 0 {
		b.WriteString("\nimports:\n")
		for _, name := range r.imports {
			b.WriteString("  " + name + "\n")
			for _, sig := range r.importInterface(name) {
				b.WriteString("    " + sig + "\n")
			}
		}
	}
	if len(r.exports) > 0 {
		b.WriteString("\nexports:\n")
		for _, name := range r.exports {
			b.WriteString("  " + r.exportSignature(name) + "\n")
		}
	}

	if r.worldText != "" {
		b.WriteString("\nworld:\n")
		b.WriteString(r.worldText)
		if !strings.HasSuffix(r.worldText, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
