package adapter

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/component"
	"github.com/wippyai/wasm-component-ld/errors"
	"github.com/wippyai/wasm-component-ld/wasm"
)

// Options carry the component options that shape adapter selection.
type Options struct {
	// Overrides are --adapt values in argument order, each spelled
	// "[NAME=]MODULE".
	Overrides []string

	// NoBuiltins disables automatic built-in selection for legacy
	// namespaces.
	NoBuiltins bool

	// Proxy selects the proxy built-in flavor.
	Proxy bool
}

// Resolution is the adapter set for one link.
type Resolution struct {
	// Adapters in sorted namespace order.
	Adapters []component.AdapterModule

	// Namespaces the adapters satisfy, sorted. Imports from these
	// never become host imports.
	Namespaces []string
}

// Resolve partitions the module's import namespaces into host-facing
// and adapted, selecting exactly one adapter per adapted namespace.
// An override wins over a built-in; built-ins serve the legacy
// namespaces unless disabled. Selection depends only on the distinct
// namespace set and the override table, never on import order.
func Resolve(main *wasm.CoreModule, opts Options) (*Resolution, error) {
	overrides, err := loadOverrides(opts.Overrides)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var namespaces []string
	for _, imp := range main.Imports() {
		if !seen[imp.Module] {
			seen[imp.Module] = true
			namespaces = append(namespaces, imp.Module)
		}
	}
	sort.Strings(namespaces)

	variant := SelectVariant(main, opts.Proxy)

	res := &Resolution{}
	used := make(map[string]bool)
	for _, ns := range namespaces {
		if a, ok := overrides[ns]; ok {
			used[ns] = true
			res.Adapters = append(res.Adapters, a)
			res.Namespaces = append(res.Namespaces, ns)
			Logger().Debug("adapter override selected",
				zap.String("namespace", ns),
				zap.Int("bytes", len(a.Bytes)))
			continue
		}
		if IsLegacy(ns) && !opts.NoBuiltins {
			a, err := BuiltIn(ns, variant)
			if err != nil {
				return nil, err
			}
			res.Adapters = append(res.Adapters, a)
			res.Namespaces = append(res.Namespaces, ns)
			Logger().Debug("built-in adapter selected",
				zap.String("namespace", ns),
				zap.Stringer("variant", variant))
			continue
		}
		Logger().Debug("namespace passes through to the host",
			zap.String("namespace", ns))
	}

	var unused []string
	for name := range overrides {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	for _, name := range unused {
		Logger().Debug("adapter override unused",
			zap.String("namespace", name))
	}

	return res, nil
}

// SplitOverride splits an "[NAME=]MODULE" adapter value. Without an
// explicit name the file stem up to the first dot is used, so
// "wasi_snapshot_preview1.reactor.wasm" adapts wasi_snapshot_preview1.
func SplitOverride(spec string) (name, path string) {
	if i := strings.IndexByte(spec, '='); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	base := filepath.Base(spec)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base, spec
}

func loadOverrides(specs []string) (map[string]component.AdapterModule, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]component.AdapterModule, len(specs))
	for _, spec := range specs {
		name, path := SplitOverride(spec)
		if _, ok := out[name]; ok {
			return nil, errors.New(errors.PhaseResolve, errors.KindConflictingOpts).
				Token("--adapt").
				Element(name).
				Detail("two adapters claim the same namespace").
				Build()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.IO(errors.PhaseResolve, path, err)
		}
		info, err := wasm.Inspect(data)
		if err != nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindMalformedAdapter).
				File(path).
				Element(name).
				Detail("adapter is not a well-formed core module").
				Cause(err).
				Build()
		}
		out[name] = component.AdapterModule{Namespace: name, Bytes: data, Info: info}
	}
	return out, nil
}
