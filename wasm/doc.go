// Package wasm provides core WebAssembly module parsing, encoding, and
// inspection.
//
// The parser accepts the output of core linkers: WebAssembly 2.0
// modules plus exception handling tags, multi-memory, memory64,
// shared memories, and extended constant expressions. GC composite
// types and typed references are rejected, since linked core modules
// never contain them.
//
// # Inspection
//
// Inspect parses, structurally validates, and indexes a module:
//
//	cm, err := wasm.Inspect(data)
//	if err != nil {
//	    return err
//	}
//	if cm.ExportsFunc("_start") {
//	    // command-style module
//	}
//	for _, imp := range cm.FuncImports() {
//	    fmt.Println(imp.Module, imp.Name)
//	}
//
// The raw bytes stay authoritative. AppendCustomSection produces a new
// binary without touching the original:
//
//	out := cm.AppendCustomSection("component-type", payload)
//
// # Parsing and Encoding
//
// ParseModule decodes a binary into a Module; Encode serializes one.
// Encoding is deterministic: identical modules produce identical
// bytes, and parsing then re-encoding is a fixed point after one
// round trip.
//
//	m, err := wasm.ParseModule(data)
//	out := m.Encode()
//
// Function bodies are carried as raw bytes; only constant expressions
// and local declarations are decoded. Structural validation (index
// bounds, export uniqueness, limits, start signature) runs via
// Validate. DeepValidate compiles the binary with wazero for full
// spec-level validation of instruction sequences.
package wasm
