// Package witmeta resolves the interface metadata a component
// declares: which host namespaces it imports, which functions it
// exports, and with what signatures.
//
// Three sources feed resolution, in precedence order: world-text files
// supplied on the command line, a metadata custom section a producer
// already embedded in the core module, and a default world synthesized
// from the module's own import and export surface. Declared signatures
// flatten to core value shapes per the canonical ABI; those shapes are
// what the encoder checks the linked module against.
//
// The resolved world text travels with the binary: Embed attaches it
// to the core module as a custom section (a no-op when one is already
// present, keeping reprocessing idempotent), and the encoder appends
// the same text at the component layer.
package witmeta
