package component

import (
	"sort"

	"github.com/wippyai/wasm-component-ld/errors"
	"github.com/wippyai/wasm-component-ld/wasm"
)

// MetadataSectionName is the custom section carrying the resolved
// world text, at both the core-module and component layers.
const MetadataSectionName = "component-type"

// Func pairs a component-level function signature with the flattened
// core signature backing it.
type Func struct {
	Name    string
	Type    FuncType
	CoreSig wasm.FuncType
}

// InstanceImport is one host namespace the component imports as an
// instance. Funcs are the functions the namespace provides.
type InstanceImport struct {
	Name  string
	Funcs []Func
}

// AdapterModule is a core module embedded alongside the main module.
// It satisfies a legacy import namespace by calling back into host
// namespaces the component imports.
type AdapterModule struct {
	Namespace string
	Bytes     []byte
	Info      *wasm.CoreModule
}

// Assembly is the complete input of Encode: the linked main module,
// the adapters the resolver selected, and the interface metadata the
// component declares.
type Assembly struct {
	Main     *wasm.CoreModule
	Adapters []AdapterModule
	Imports  []InstanceImport
	Exports  []Func

	// StringEncoding is the canonical string-encoding option emitted
	// on every lift. The zero value is UTF-8.
	StringEncoding byte

	// WorldText is the payload of the trailing metadata custom
	// section; empty means none is emitted.
	WorldText []byte

	// SkipValidation disables the post-encode self-decode.
	SkipValidation bool
}

// Encode assembles a component binary. The main module is embedded
// verbatim as core module 0, adapters follow in sorted namespace
// order, and the declared imports and exports become the component's
// public interface. Equal inputs produce byte-identical output.
func Encode(asm Assembly) ([]byte, error) {
	if asm.Main == nil {
		return nil, errors.EncodeInternal("assembly has no main module")
	}
	if asm.StringEncoding > CanonOptCompactUTF16 {
		return nil, errors.EncodeInternal("invalid string encoding 0x%02x", asm.StringEncoding)
	}

	// Work on sorted copies so input order never leaks into the
	// binary.
	imports := sortedImports(asm.Imports)
	adapters := sortedAdapters(asm.Adapters)
	exports := sortedFuncs(asm.Exports)

	l, err := planLayout(asm.Main, adapters, imports, exports)
	if err != nil {
		return nil, err
	}

	b := newBuilder(len(asm.Main.Raw) + 4096)
	if err := emitTypes(b, imports, exports); err != nil {
		return nil, err
	}
	if err := emitImports(b, imports); err != nil {
		return nil, err
	}
	if err := emitImportAliases(b, imports); err != nil {
		return nil, err
	}
	if err := emitLowers(b, l.loweredFuncs); err != nil {
		return nil, err
	}
	if err := emitModules(b, asm.Main, adapters); err != nil {
		return nil, err
	}
	if err := emitInstances(b, l, asm.Main, imports, adapters); err != nil {
		return nil, err
	}
	if err := emitCoreAliases(b, l, exports); err != nil {
		return nil, err
	}
	if err := emitLifts(b, l, asm.StringEncoding, len(imports), exports); err != nil {
		return nil, err
	}
	if err := emitExports(b, l, exports); err != nil {
		return nil, err
	}
	if len(asm.WorldText) > 0 {
		payload := appendName(nil, MetadataSectionName)
		payload = append(payload, asm.WorldText...)
		if err := b.section(phaseCustom, SectionCustom, payload); err != nil {
			return nil, err
		}
	}

	out := b.bytes()
	if !asm.SkipValidation {
		if err := selfCheck(out, l, &asm, adapters, imports, exports); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// layout carries the index-space arithmetic shared by the emitters.
//
// Component function indices: import aliases first (one per lowered
// function), then lifts. Core function indices: lowers first, then the
// aliased realloc when present, then the aliased exports. Core
// instance indices: one shim per host namespace, then the adapters,
// then the main module.
type layout struct {
	loweredFuncs int
	hasMemory    bool
	hasRealloc   bool

	// shimIndex maps a host namespace to its shim core instance;
	// loweredIndex maps namespace#function to its lowered core
	// function.
	shimIndex    map[string]int
	loweredIndex map[string]int

	// adapterIndex maps an adapter namespace to its core instance.
	adapterIndex map[string]int

	mainInstance int
}

func importKey(namespace, function string) string {
	return namespace + "#" + function
}

// planLayout checks the assembly against the main module and the
// adapters, then fixes every index the emitters will reference.
// Coverage failures surface as unresolved-import errors naming each
// missing function; signature failures as type-mismatch errors naming
// the element.
func planLayout(main *wasm.CoreModule, adapters []AdapterModule, imports []InstanceImport, exports []Func) (*layout, error) {
	l := &layout{
		shimIndex:    make(map[string]int, len(imports)),
		loweredIndex: make(map[string]int),
		adapterIndex: make(map[string]int, len(adapters)),
	}

	hostFuncs := make(map[string]wasm.FuncType)
	for k, imp := range imports {
		if imp.Name == "" {
			return nil, errors.EncodeInternal("import namespace with empty name")
		}
		if _, dup := l.shimIndex[imp.Name]; dup {
			return nil, errors.EncodeInternal("duplicate import namespace %q", imp.Name)
		}
		l.shimIndex[imp.Name] = k
		for _, f := range imp.Funcs {
			key := importKey(imp.Name, f.Name)
			if _, dup := hostFuncs[key]; dup {
				return nil, errors.EncodeInternal("duplicate function %q in namespace %q", f.Name, imp.Name)
			}
			hostFuncs[key] = f.CoreSig
			l.loweredIndex[key] = l.loweredFuncs
			l.loweredFuncs++
		}
	}

	for m, ad := range adapters {
		if ad.Info == nil || len(ad.Bytes) == 0 {
			return nil, errors.EncodeInternal("adapter %q has no decoded module", ad.Namespace)
		}
		if _, dup := l.adapterIndex[ad.Namespace]; dup {
			return nil, errors.EncodeInternal("duplicate adapter namespace %q", ad.Namespace)
		}
		if _, clash := l.shimIndex[ad.Namespace]; clash {
			return nil, errors.EncodeInternal("adapter namespace %q collides with a host namespace", ad.Namespace)
		}
		l.adapterIndex[ad.Namespace] = len(imports) + m
	}
	l.mainInstance = len(imports) + len(adapters)

	// Every import of every adapter must resolve to a host function
	// with an equal core signature. Adapters run before the main
	// module, so they cannot reference it.
	for _, ad := range adapters {
		for _, ref := range ad.Info.Imports() {
			key := importKey(ref.Module, ref.Name)
			if ref.Kind != wasm.KindFunc {
				return nil, errors.New(errors.PhaseEncode, errors.KindUnresolvedImport).
					Element(key).
					Detail("adapter %q has a non-function import", ad.Namespace).
					Build()
			}
			want, ok := hostFuncs[key]
			if !ok {
				return nil, errors.NewUnresolvedImportsError([]string{key})
			}
			got, _ := ad.Info.ImportedFuncType(ref.Module, ref.Name)
			if !got.Equal(want) {
				return nil, errors.TypeMismatch(key, got.String(), want.String())
			}
		}
	}

	// Every import of the main module must resolve to an adapter
	// export or a host function.
	var unresolved []string
	for _, ref := range main.Imports() {
		key := importKey(ref.Module, ref.Name)
		if ref.Kind != wasm.KindFunc {
			return nil, errors.New(errors.PhaseEncode, errors.KindUnresolvedImport).
				Element(key).
				Detail("only function imports can be satisfied by a host instance").
				Build()
		}
		got, _ := main.ImportedFuncType(ref.Module, ref.Name)

		if _, ok := l.adapterIndex[ref.Module]; ok {
			ad := adapterByNamespace(adapters, ref.Module)
			want, ok := ad.Info.ExportedFuncType(ref.Name)
			if !ok {
				unresolved = append(unresolved, key)
				continue
			}
			if !got.Equal(want) {
				return nil, errors.TypeMismatch(key, got.String(), want.String())
			}
			continue
		}

		want, ok := hostFuncs[key]
		if !ok {
			unresolved = append(unresolved, key)
			continue
		}
		if !got.Equal(want) {
			return nil, errors.TypeMismatch(key, got.String(), want.String())
		}
	}
	if len(unresolved) > 0 {
		return nil, errors.NewUnresolvedImportsError(unresolved)
	}

	// Every declared export must be backed by a main-module function
	// export with an equal core signature.
	seen := make(map[string]bool, len(exports))
	for _, e := range exports {
		if seen[e.Name] {
			return nil, errors.EncodeInternal("duplicate export %q", e.Name)
		}
		seen[e.Name] = true
		got, ok := main.ExportedFuncType(e.Name)
		if !ok {
			return nil, errors.TypeMismatch(e.Name, "absent", e.CoreSig.String())
		}
		if !got.Equal(e.CoreSig) {
			return nil, errors.TypeMismatch(e.Name, got.String(), e.CoreSig.String())
		}
	}

	if exp := main.Module.ExportByName("memory"); exp != nil && exp.Kind == wasm.KindMemory {
		l.hasMemory = true
	}
	l.hasRealloc = main.ExportsFunc("cabi_realloc")
	return l, nil
}

func adapterByNamespace(adapters []AdapterModule, ns string) AdapterModule {
	for _, ad := range adapters {
		if ad.Namespace == ns {
			return ad
		}
	}
	return AdapterModule{}
}

// exportCoreFunc returns the core function index of the aliased export
// at position e.
func (l *layout) exportCoreFunc(e int) int {
	idx := l.loweredFuncs + e
	if l.hasRealloc {
		idx++
	}
	return idx
}

// emitTypes writes one type section: an instance type per host
// namespace, then one function type per export. Instance types are
// self-contained, declaring each function type locally before
// exporting it.
func emitTypes(b *builder, imports []InstanceImport, exports []Func) error {
	if len(imports) == 0 && len(exports) == 0 {
		return nil
	}
	payload := appendLEB128(nil, uint32(len(imports)+len(exports)))
	for _, imp := range imports {
		payload = append(payload, 0x42)
		payload = appendLEB128(payload, uint32(2*len(imp.Funcs)))
		for j, f := range imp.Funcs {
			payload = append(payload, DeclType)
			var err error
			payload, err = appendFuncType(payload, f.Type)
			if err != nil {
				return err
			}
			payload = append(payload, DeclExport)
			payload = appendExternName(payload, f.Name)
			payload = append(payload, ExternFunc)
			payload = appendLEB128(payload, uint32(j))
		}
	}
	for _, e := range exports {
		var err error
		payload, err = appendFuncType(payload, e.Type)
		if err != nil {
			return err
		}
	}
	return b.section(phaseTypes, SectionType, payload)
}

func appendFuncType(buf []byte, ft FuncType) ([]byte, error) {
	buf = append(buf, 0x40)
	buf = appendLEB128(buf, uint32(len(ft.Params)))
	for _, p := range ft.Params {
		buf = appendName(buf, p.Name)
		var err error
		buf, err = appendValType(buf, p.Type)
		if err != nil {
			return nil, errors.EncodeInternal("param %q: %v", p.Name, err)
		}
	}
	if ft.Result != nil {
		buf = append(buf, 0x00)
		var err error
		buf, err = appendValType(buf, ft.Result)
		if err != nil {
			return nil, errors.EncodeInternal("result: %v", err)
		}
	} else {
		buf = append(buf, 0x01, 0x00)
	}
	return buf, nil
}

// emitImports writes one instance import per host namespace.
// Namespace k imports instance type k, creating component instance k.
func emitImports(b *builder, imports []InstanceImport) error {
	if len(imports) == 0 {
		return nil
	}
	payload := appendLEB128(nil, uint32(len(imports)))
	for k, imp := range imports {
		payload = appendExternName(payload, imp.Name)
		payload = append(payload, ExternInstance)
		payload = appendLEB128(payload, uint32(k))
	}
	return b.section(phaseImports, SectionImport, payload)
}

// emitImportAliases projects every imported function out of its
// instance, filling component function indices 0..n-1 in namespace
// order.
func emitImportAliases(b *builder, imports []InstanceImport) error {
	total := 0
	for _, imp := range imports {
		total += len(imp.Funcs)
	}
	if total == 0 {
		return nil
	}
	payload := appendLEB128(nil, uint32(total))
	for k, imp := range imports {
		for _, f := range imp.Funcs {
			payload = append(payload, SortFunc, AliasExport)
			payload = appendLEB128(payload, uint32(k))
			payload = appendName(payload, f.Name)
		}
	}
	return b.section(phaseImportAliases, SectionAlias, payload)
}

// emitLowers lowers every aliased import function to a core function,
// one canon section each. Lowers carry no options: the boundary is a
// plain core signature.
func emitLowers(b *builder, count int) error {
	for i := 0; i < count; i++ {
		payload := appendLEB128(nil, 1)
		payload = append(payload, CanonLower, 0x00)
		payload = appendLEB128(payload, uint32(i))
		payload = appendLEB128(payload, 0)
		if err := b.section(phaseLowers, SectionCanon, payload); err != nil {
			return err
		}
	}
	return nil
}

// emitModules embeds the main module as core module 0 and the
// adapters after it.
func emitModules(b *builder, main *wasm.CoreModule, adapters []AdapterModule) error {
	if err := b.section(phaseModules, SectionCoreModule, main.Raw); err != nil {
		return err
	}
	for _, ad := range adapters {
		if err := b.section(phaseModules, SectionCoreModule, ad.Bytes); err != nil {
			return err
		}
	}
	return nil
}

// emitInstances writes the single core instance section: shim
// instances exporting the lowered functions, adapter instantiations,
// then the main module with one argument per import namespace.
func emitInstances(b *builder, l *layout, main *wasm.CoreModule, imports []InstanceImport, adapters []AdapterModule) error {
	payload := appendLEB128(nil, uint32(len(imports)+len(adapters)+1))

	for _, imp := range imports {
		payload = append(payload, CoreInstanceFromExports)
		payload = appendLEB128(payload, uint32(len(imp.Funcs)))
		for _, f := range imp.Funcs {
			payload = appendName(payload, f.Name)
			payload = append(payload, CoreExportFunc)
			payload = appendLEB128(payload, uint32(l.loweredIndex[importKey(imp.Name, f.Name)]))
		}
	}

	for m, ad := range adapters {
		payload = append(payload, CoreInstanceInstantiate)
		payload = appendLEB128(payload, uint32(1+m))
		payload = appendInstantiateArgs(payload, l, ad.Info)
	}

	payload = append(payload, CoreInstanceInstantiate)
	payload = appendLEB128(payload, 0)
	payload = appendInstantiateArgs(payload, l, main)

	return b.section(phaseInstances, SectionCoreInstance, payload)
}

// appendInstantiateArgs writes the argument vector for one module
// instantiation: its distinct import namespaces in sorted order, each
// bound to the matching shim or adapter instance.
func appendInstantiateArgs(buf []byte, l *layout, info *wasm.CoreModule) []byte {
	namespaces := importNamespaces(info)
	buf = appendLEB128(buf, uint32(len(namespaces)))
	for _, ns := range namespaces {
		buf = appendName(buf, ns)
		buf = append(buf, CoreSortInstance)
		idx, ok := l.adapterIndex[ns]
		if !ok {
			idx = l.shimIndex[ns]
		}
		buf = appendLEB128(buf, uint32(idx))
	}
	return buf
}

func importNamespaces(info *wasm.CoreModule) []string {
	seen := make(map[string]bool)
	var namespaces []string
	for _, ref := range info.Imports() {
		if !seen[ref.Module] {
			seen[ref.Module] = true
			namespaces = append(namespaces, ref.Module)
		}
	}
	sort.Strings(namespaces)
	return namespaces
}

// emitCoreAliases projects the pieces of the main instance the lifts
// need: the exported memory, the realloc function, and one alias per
// declared export.
func emitCoreAliases(b *builder, l *layout, exports []Func) error {
	count := len(exports)
	if l.hasMemory {
		count++
	}
	if l.hasRealloc {
		count++
	}
	if count == 0 {
		return nil
	}

	payload := appendLEB128(nil, uint32(count))
	if l.hasMemory {
		payload = append(payload, SortCore, CoreSortMemory, AliasCoreInstanceExport)
		payload = appendLEB128(payload, uint32(l.mainInstance))
		payload = appendName(payload, "memory")
	}
	if l.hasRealloc {
		payload = append(payload, SortCore, CoreSortFunc, AliasCoreInstanceExport)
		payload = appendLEB128(payload, uint32(l.mainInstance))
		payload = appendName(payload, "cabi_realloc")
	}
	for _, e := range exports {
		payload = append(payload, SortCore, CoreSortFunc, AliasCoreInstanceExport)
		payload = appendLEB128(payload, uint32(l.mainInstance))
		payload = appendName(payload, e.Name)
	}
	return b.section(phaseCoreAliases, SectionAlias, payload)
}

// emitLifts lifts each aliased export to a component function, one
// canon section each. Lifts carry the string-encoding option plus
// memory and realloc options when the main module exports them.
func emitLifts(b *builder, l *layout, encoding byte, typeBase int, exports []Func) error {
	for e := range exports {
		optCount := 1
		if l.hasMemory {
			optCount++
		}
		if l.hasRealloc {
			optCount++
		}

		payload := appendLEB128(nil, 1)
		payload = append(payload, CanonLift, 0x00)
		payload = appendLEB128(payload, uint32(l.exportCoreFunc(e)))
		payload = appendLEB128(payload, uint32(optCount))
		payload = append(payload, encoding)
		if l.hasMemory {
			payload = append(payload, CanonOptMemory)
			payload = appendLEB128(payload, 0)
		}
		if l.hasRealloc {
			payload = append(payload, CanonOptRealloc)
			payload = appendLEB128(payload, uint32(l.loweredFuncs))
		}
		payload = appendLEB128(payload, uint32(typeBase+e))
		if err := b.section(phaseLifts, SectionCanon, payload); err != nil {
			return err
		}
	}
	return nil
}

// emitExports writes the export section. Lift e produced component
// function loweredFuncs+e.
func emitExports(b *builder, l *layout, exports []Func) error {
	if len(exports) == 0 {
		return nil
	}
	payload := appendLEB128(nil, uint32(len(exports)))
	for e, f := range exports {
		payload = appendExternName(payload, f.Name)
		payload = append(payload, SortFunc)
		payload = appendLEB128(payload, uint32(l.loweredFuncs+e))
		payload = append(payload, 0x00)
	}
	return b.section(phaseExports, SectionExport, payload)
}

// selfCheck decodes the finished binary with this package's own
// decoder and verifies the section counts the layout promised.
func selfCheck(out []byte, l *layout, asm *Assembly, adapters []AdapterModule, imports []InstanceImport, exports []Func) error {
	c, err := Decode(out)
	if err != nil {
		return errors.EncodeInternal("emitted component does not decode: %v", err)
	}
	if got, want := len(c.CoreModules), 1+len(adapters); got != want {
		return errors.EncodeInternal("emitted %d core modules, expected %d", got, want)
	}
	if got, want := len(c.Imports), len(imports); got != want {
		return errors.EncodeInternal("emitted %d imports, expected %d", got, want)
	}
	if got, want := len(c.Exports), len(exports); got != want {
		return errors.EncodeInternal("emitted %d exports, expected %d", got, want)
	}
	if got, want := len(c.CoreInstances), len(imports)+len(adapters)+1; got != want {
		return errors.EncodeInternal("emitted %d core instances, expected %d", got, want)
	}
	if got, want := len(c.Canons), l.loweredFuncs+len(exports); got != want {
		return errors.EncodeInternal("emitted %d canon definitions, expected %d", got, want)
	}
	if len(asm.WorldText) > 0 {
		if _, ok := c.CustomSection(MetadataSectionName); !ok {
			return errors.EncodeInternal("emitted component lost its metadata section")
		}
	}
	return nil
}

func sortedImports(imports []InstanceImport) []InstanceImport {
	out := make([]InstanceImport, len(imports))
	for i, imp := range imports {
		out[i] = InstanceImport{Name: imp.Name, Funcs: sortedFuncs(imp.Funcs)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedAdapters(adapters []AdapterModule) []AdapterModule {
	out := make([]AdapterModule, len(adapters))
	copy(out, adapters)
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

func sortedFuncs(funcs []Func) []Func {
	out := make([]Func, len(funcs))
	copy(out, funcs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
