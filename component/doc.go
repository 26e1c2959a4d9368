// Package component encodes and decodes WebAssembly Component Model
// binaries.
//
// Encode assembles a component from an Assembly: the linked core
// module, the adapter modules the resolver selected, and the declared
// import and export interface. The emitted layout is fixed — types,
// instance imports, import aliases, canonical lowers, core modules,
// core instances, core aliases, canonical lifts, exports, then the
// component-type metadata section — and a builder state machine
// rejects any out-of-order section as an encode-internal error.
// Equal assemblies produce byte-identical binaries.
//
// Decode parses a component back into its section contents; index
// spaces accumulate across sections in binary order. The decoder
// accepts the full value-type grammar so components produced by other
// toolchains can be inspected, while the encoder emits only the
// subset the linker needs.
package component
