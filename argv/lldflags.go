package argv

// Arity states how a linker flag accepts its value.
type Arity int

const (
	// ArityNone takes no value.
	ArityNone Arity = iota

	// ArityEqual takes its value attached with '=', as in --export=run.
	ArityEqual

	// AritySpace takes its value as the next token, or attached with
	// '='.
	AritySpace

	// ArityOptional may appear bare or with a value attached with '='.
	ArityOptional
)

// lldFlag is one flag native to the external linker.
type lldFlag struct {
	long  string
	short byte
	arity Arity
}

// lldFlags mirrors wasm-ld's option surface so flag/value pairs stay
// adjacent through classification. A flag absent here still forwards,
// it just never claims the token after it. The one long flag spelled
// with a single dash, -shared, is handled apart from this table.
var lldFlags = []lldFlag{
	{long: "allow-undefined", arity: ArityNone},
	{long: "allow-undefined-file", arity: ArityEqual},
	{long: "Bdynamic", arity: ArityNone},
	{long: "Bstatic", arity: ArityNone},
	{long: "Bsymbolic", arity: ArityNone},
	{long: "build-id", arity: ArityOptional},
	{long: "call_shared", arity: ArityNone},
	{long: "check-features", arity: ArityNone},
	{long: "color-diagnostics", arity: ArityOptional},
	{long: "compress-relocations", arity: ArityNone},
	{long: "demangle", arity: ArityNone},
	{long: "dn", arity: ArityNone},
	{long: "dy", arity: ArityNone},
	{long: "emit-relocs", arity: ArityNone},
	{long: "end-lib", arity: ArityNone},
	{long: "entry", arity: AritySpace},
	{long: "error-limit", arity: ArityEqual},
	{long: "error-unresolved-symbols", arity: ArityNone},
	{long: "experimental-pic", arity: ArityNone},
	{long: "export", arity: ArityEqual},
	{long: "export-all", arity: ArityNone},
	{long: "export-dynamic", short: 'E', arity: ArityNone},
	{long: "export-if-defined", arity: ArityEqual},
	{long: "export-memory", arity: ArityOptional},
	{long: "export-table", arity: ArityNone},
	{long: "extra-features", arity: ArityEqual},
	{long: "fatal-warnings", arity: ArityNone},
	{long: "features", arity: ArityEqual},
	{long: "gc-sections", arity: ArityNone},
	{long: "global-base", arity: ArityEqual},
	{long: "growable-table", arity: ArityNone},
	{long: "import-memory", arity: ArityOptional},
	{long: "import-table", arity: ArityNone},
	{long: "import-undefined", arity: ArityNone},
	{long: "initial-heap", arity: ArityEqual},
	{long: "initial-memory", arity: ArityEqual},
	{long: "keep-section", arity: ArityEqual},
	{short: 'L', arity: AritySpace},
	{short: 'l', arity: AritySpace},
	{long: "lto-CGO", arity: ArityEqual},
	{long: "lto-O", arity: ArityEqual},
	{long: "lto-debug-pass-manager", arity: ArityNone},
	{long: "lto-partitions", arity: ArityEqual},
	{short: 'm', arity: AritySpace},
	{long: "Map", arity: ArityEqual},
	{long: "max-memory", arity: ArityEqual},
	{long: "merge-data-segments", arity: ArityNone},
	{long: "mllvm", arity: ArityEqual},
	{long: "no-check-features", arity: ArityNone},
	{long: "no-color-diagnostics", arity: ArityNone},
	{long: "no-demangle", arity: ArityNone},
	{long: "no-entry", arity: ArityNone},
	{long: "no-export-dynamic", arity: ArityNone},
	{long: "no-gc-sections", arity: ArityNone},
	{long: "no-merge-data-segments", arity: ArityNone},
	{long: "no-pie", arity: ArityNone},
	{long: "no-print-gc-sections", arity: ArityNone},
	{long: "no-whole-archive", arity: ArityNone},
	{long: "non_shared", arity: ArityNone},
	{short: 'O', arity: AritySpace},
	{long: "pie", arity: ArityNone},
	{long: "print-gc-sections", arity: ArityNone},
	{long: "print-map", short: 'M', arity: ArityNone},
	{long: "relocatable", arity: ArityNone},
	{long: "save-temps", arity: ArityNone},
	{long: "shared", arity: ArityNone},
	{long: "shared-memory", arity: ArityNone},
	{long: "soname", arity: ArityEqual},
	{long: "stack-first", arity: ArityNone},
	{long: "start-lib", arity: ArityNone},
	{long: "static", arity: ArityNone},
	{long: "strip-all", short: 's', arity: ArityNone},
	{long: "strip-debug", short: 'S', arity: ArityNone},
	{long: "table-base", arity: ArityEqual},
	{long: "thinlto-cache-dir", arity: ArityEqual},
	{long: "thinlto-cache-policy", arity: ArityEqual},
	{long: "thinlto-jobs", arity: ArityEqual},
	{long: "threads", arity: ArityEqual},
	{long: "trace", short: 't', arity: ArityNone},
	{long: "trace-symbol", short: 'y', arity: ArityEqual},
	{long: "undefined", arity: ArityEqual},
	{long: "unresolved-symbols", arity: ArityEqual},
	{long: "warn-unresolved-symbols", arity: ArityNone},
	{long: "whole-archive", arity: ArityNone},
	{long: "why-extract", arity: ArityEqual},
	{long: "wrap", arity: ArityEqual},
	{short: 'z', arity: AritySpace},
}

var (
	lldLong  = make(map[string]Arity)
	lldShort = make(map[byte]Arity)
)

func init() {
	for _, f := range lldFlags {
		if f.long != "" {
			lldLong[f.long] = f.arity
		}
		if f.short != 0 {
			lldShort[f.short] = f.arity
		}
	}
}
