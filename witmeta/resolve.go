package witmeta

import (
	"os"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/component"
	"github.com/wippyai/wasm-component-ld/errors"
	"github.com/wippyai/wasm-component-ld/wasm"
)

// Metadata is the resolved interface description of one link: the
// instance imports and lifted exports the component declares, the
// world text embedded alongside them, and the string encoding every
// lift carries.
type Metadata struct {
	Imports        []component.InstanceImport
	Exports        []component.Func
	WorldText      []byte
	StringEncoding byte
	Synthesized    bool
}

// Options carry the component options that shape metadata resolution.
type Options struct {
	// WorldFiles are world-text files in argument order. Their
	// contents concatenate into one world.
	WorldFiles []string

	// StringEncoding is utf8, utf16 or compact-utf16; empty means
	// utf8.
	StringEncoding string

	// AdaptedNamespaces are import namespaces an adapter satisfies.
	// They never become host imports.
	AdaptedNamespaces []string

	// AllowUnknownImports synthesizes instance imports for namespaces
	// the declared world does not cover instead of failing the link.
	AllowUnknownImports bool
}

// Resolve produces the metadata for one link. World text is taken from
// the option files first, then from a section the producer already
// embedded in the module, and is synthesized from the module's own
// import and export surface when neither exists.
func Resolve(main *wasm.CoreModule, adapters []component.AdapterModule, opts Options) (*Metadata, error) {
	encoding, err := ParseStringEncoding(opts.StringEncoding)
	if err != nil {
		return nil, err
	}

	adapted := make(map[string]bool, len(opts.AdaptedNamespaces))
	for _, ns := range opts.AdaptedNamespaces {
		adapted[ns] = true
	}

	embedded, hasEmbedded := Extract(main)

	var text string
	switch {
	case len(opts.WorldFiles) > 0:
		if hasEmbedded {
			return nil, errors.New(errors.PhaseMeta, errors.KindConflictingOpts).
				Token("--component-type").
				Detail("module already carries embedded interface metadata").
				Build()
		}
		text, err = readWorldFiles(opts.WorldFiles)
		if err != nil {
			return nil, err
		}
		Logger().Debug("resolved world from files",
			zap.Int("files", len(opts.WorldFiles)))

	case hasEmbedded:
		text = string(embedded)
		Logger().Debug("resolved world from embedded metadata",
			zap.Int("bytes", len(embedded)))

	default:
		return synthesize(main, adapters, adapted, encoding)
	}

	world, err := ParseWorld(text)
	if err != nil {
		return nil, err
	}

	if opts.AllowUnknownImports {
		exclude := make(map[string]bool, len(adapted)+len(world.Imports))
		for ns := range adapted {
			exclude[ns] = true
		}
		for _, iface := range world.Imports {
			exclude[iface.Name] = true
		}
		extra, err := synthesizeImports(coreModules(main, adapters), exclude)
		if err != nil {
			return nil, err
		}
		for _, iface := range extra {
			Logger().Debug("passing through unknown import namespace",
				zap.String("namespace", iface.Name),
				zap.Int("functions", len(iface.Funcs)))
		}
		world.Imports = append(world.Imports, extra...)
	}

	meta, err := buildMetadata(world)
	if err != nil {
		return nil, err
	}
	meta.WorldText = []byte(text)
	meta.StringEncoding = encoding
	return meta, nil
}

// synthesize builds the default world: every unadapted import
// namespace of the main module and its adapters becomes an imported
// instance, every plain exported function an exported func.
func synthesize(main *wasm.CoreModule, adapters []component.AdapterModule, adapted map[string]bool, encoding byte) (*Metadata, error) {
	world := &World{}

	imports, err := synthesizeImports(coreModules(main, adapters), adapted)
	if err != nil {
		return nil, err
	}
	world.Imports = imports

	for _, name := range main.ExportNames() {
		if !main.ExportsFunc(name) || internalExport(name) {
			continue
		}
		sig, ok := main.ExportedFuncType(name)
		if !ok {
			continue
		}
		f, err := funcFromCore(name, name, sig)
		if err != nil {
			return nil, err
		}
		world.Exports = append(world.Exports, f)
	}

	meta, err := buildMetadata(world)
	if err != nil {
		return nil, err
	}
	// An empty world has no text form ParseWorld would accept, so an
	// empty synthesis embeds nothing and the next run synthesizes the
	// same emptiness again.
	if len(world.Imports) > 0 || len(world.Exports) > 0 {
		meta.WorldText = []byte(world.Render())
	}
	meta.StringEncoding = encoding
	meta.Synthesized = true

	Logger().Debug("synthesized default world",
		zap.Int("namespaces", len(meta.Imports)),
		zap.Int("exports", len(meta.Exports)))
	return meta, nil
}

// synthesizeImports derives instance imports from the function imports
// of the given modules, skipping excluded namespaces. The first
// occurrence of a (namespace, name) pair fixes its signature; a
// conflicting re-occurrence surfaces later as a type mismatch against
// the module that lost.
func synthesizeImports(mods []*wasm.CoreModule, exclude map[string]bool) ([]Interface, error) {
	var ifaces []Interface
	byNS := make(map[string]int)

	for _, mod := range mods {
		for _, imp := range mod.FuncImports() {
			if exclude[imp.Module] {
				continue
			}
			sig, ok := mod.ImportedFuncType(imp.Module, imp.Name)
			if !ok {
				continue
			}

			idx, ok := byNS[imp.Module]
			if !ok {
				idx = len(ifaces)
				byNS[imp.Module] = idx
				ifaces = append(ifaces, Interface{Name: imp.Module})
			}
			if _, exists := ifaces[idx].funcByName(imp.Name); exists {
				continue
			}

			f, err := funcFromCore(imp.Name, imp.Module+"#"+imp.Name, sig)
			if err != nil {
				return nil, err
			}
			ifaces[idx].Funcs = append(ifaces[idx].Funcs, f)
		}
	}
	return ifaces, nil
}

func (i *Interface) funcByName(name string) (WorldFunc, bool) {
	for _, f := range i.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return WorldFunc{}, false
}

func coreModules(main *wasm.CoreModule, adapters []component.AdapterModule) []*wasm.CoreModule {
	mods := []*wasm.CoreModule{main}
	for _, a := range adapters {
		if a.Info != nil {
			mods = append(mods, a.Info)
		}
	}
	return mods
}

// funcFromCore maps a core signature to an interface signature:
// i32 becomes s32, i64 s64, floats carry over.
func funcFromCore(name, element string, sig wasm.FuncType) (WorldFunc, error) {
	f := WorldFunc{Name: name}
	for i, p := range sig.Params {
		t, ok := coreToWit(p)
		if !ok {
			return WorldFunc{}, errors.New(errors.PhaseMeta, errors.KindInvalidData).
				Element(element).
				CoreType(sig.String()).
				Detail("core parameter type has no interface mapping").
				Build()
		}
		f.Params = append(f.Params, NamedType{Name: paramName(i), Type: t})
	}
	switch len(sig.Results) {
	case 0:
	case 1:
		t, ok := coreToWit(sig.Results[0])
		if !ok {
			return WorldFunc{}, errors.New(errors.PhaseMeta, errors.KindInvalidData).
				Element(element).
				CoreType(sig.String()).
				Detail("core result type has no interface mapping").
				Build()
		}
		f.Result = t
	default:
		return WorldFunc{}, errors.New(errors.PhaseMeta, errors.KindInvalidData).
			Element(element).
			CoreType(sig.String()).
			Detail("multi-value signature is not expressible in a world").
			Build()
	}
	return f, nil
}

func coreToWit(t wasm.ValType) (wit.Type, bool) {
	switch t {
	case wasm.ValI32:
		return wit.S32{}, true
	case wasm.ValI64:
		return wit.S64{}, true
	case wasm.ValF32:
		return wit.F32{}, true
	case wasm.ValF64:
		return wit.F64{}, true
	default:
		return nil, false
	}
}

func paramName(i int) string {
	return "p" + strconv.Itoa(i)
}

// internalExport reports canonical ABI machinery exports that never
// become world exports: cabi_realloc, _start, _initialize and the
// like.
func internalExport(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, "cabi_")
}

// buildMetadata turns a World into the declared shapes the encoder
// consumes: imports flatten in the lower direction, exports in the
// lift direction.
func buildMetadata(world *World) (*Metadata, error) {
	meta := &Metadata{}

	for _, iface := range world.Imports {
		inst := component.InstanceImport{Name: iface.Name}
		for _, f := range iface.Funcs {
			cf, err := declaredFunc(f, iface.Name+"#"+f.Name, Lower)
			if err != nil {
				return nil, err
			}
			inst.Funcs = append(inst.Funcs, cf)
		}
		meta.Imports = append(meta.Imports, inst)
	}

	for _, f := range world.Exports {
		cf, err := declaredFunc(f, f.Name, Lift)
		if err != nil {
			return nil, err
		}
		meta.Exports = append(meta.Exports, cf)
	}

	return meta, nil
}

func declaredFunc(f WorldFunc, element string, dir Direction) (component.Func, error) {
	ft := component.FuncType{}
	for _, p := range f.Params {
		vt, ok := witToVal(p.Type)
		if !ok {
			return component.Func{}, unexpressible(element, p.Type)
		}
		ft.Params = append(ft.Params, component.Param{Name: p.Name, Type: vt})
	}
	if f.Result != nil {
		vt, ok := witToVal(f.Result)
		if !ok {
			return component.Func{}, unexpressible(element, f.Result)
		}
		ft.Result = vt
	}

	return component.Func{
		Name:    f.Name,
		Type:    ft,
		CoreSig: CoreSignature(f, dir),
	}, nil
}

func unexpressible(element string, t wit.Type) error {
	return errors.New(errors.PhaseMeta, errors.KindInvalidData).
		Element(element).
		WitType(TypeString(t)).
		Detail("parameterized types are not supported in declared signatures").
		Build()
}

// witToVal maps an interface type to the value type the type section
// spells. Only primitives have a spelling there; parameterized types
// would need type definitions.
func witToVal(t wit.Type) (component.ValType, bool) {
	switch v := t.(type) {
	case wit.Bool:
		return component.PrimValType{Type: component.PrimBool}, true
	case wit.U8:
		return component.PrimValType{Type: component.PrimU8}, true
	case wit.S8:
		return component.PrimValType{Type: component.PrimS8}, true
	case wit.U16:
		return component.PrimValType{Type: component.PrimU16}, true
	case wit.S16:
		return component.PrimValType{Type: component.PrimS16}, true
	case wit.U32:
		return component.PrimValType{Type: component.PrimU32}, true
	case wit.S32:
		return component.PrimValType{Type: component.PrimS32}, true
	case wit.U64:
		return component.PrimValType{Type: component.PrimU64}, true
	case wit.S64:
		return component.PrimValType{Type: component.PrimS64}, true
	case wit.F32:
		return component.PrimValType{Type: component.PrimF32}, true
	case wit.F64:
		return component.PrimValType{Type: component.PrimF64}, true
	case wit.Char:
		return component.PrimValType{Type: component.PrimChar}, true
	case wit.String:
		return component.PrimValType{Type: component.PrimString}, true
	case *wit.TypeDef:
		if v == nil || v.Kind == nil {
			return nil, false
		}
		if inner, ok := v.Kind.(wit.Type); ok {
			return witToVal(inner)
		}
		return nil, false
	default:
		return nil, false
	}
}

// ParseStringEncoding maps the option value to the canonical option
// byte. Empty selects UTF-8.
func ParseStringEncoding(s string) (byte, error) {
	switch s {
	case "", "utf8":
		return component.CanonOptUTF8, nil
	case "utf16":
		return component.CanonOptUTF16, nil
	case "compact-utf16":
		return component.CanonOptCompactUTF16, nil
	default:
		return 0, errors.New(errors.PhaseMeta, errors.KindInvalidData).
			Token(s).
			Detail("unknown string encoding; expected utf8, utf16 or compact-utf16").
			Build()
	}
}

// Extract returns world text a producer already embedded in the
// module.
func Extract(main *wasm.CoreModule) ([]byte, bool) {
	return main.CustomSection(component.MetadataSectionName)
}

// Embed returns module bytes carrying the world text as a metadata
// custom section. A module that already has one passes through
// unchanged, which keeps reprocessing idempotent; the second return
// reports whether new bytes were produced.
func Embed(main *wasm.CoreModule, worldText []byte) ([]byte, bool) {
	if len(worldText) == 0 || main.HasCustomSection(component.MetadataSectionName) {
		return main.Raw, false
	}
	return main.AppendCustomSection(component.MetadataSectionName, worldText), true
}

func readWorldFiles(paths []string) (string, error) {
	var b strings.Builder
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.IO(errors.PhaseMeta, path, err)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.Write(data)
	}
	return b.String(), nil
}
