// Package lld locates and runs the external core linker.
//
// The driver fronts wasm-ld: classified linker tokens pass through to
// a synchronously spawned child that inherits this process's stdio,
// and its diagnostics and exit status surface without interpretation.
// The child writes to an intercept path in a workspace directory next
// to the real destination, so the file name the linker records in the
// module's name section matches the artifact. Process spawning is a
// function value on the invoker, replaced by a fake in tests.
package lld
