// Package errors provides structured error types for the component linker driver.
//
// Errors are categorized by Phase (which pipeline stage failed) and Kind (error
// category). The Error type includes rich context: the offending command-line
// token, interface element, filesystem path, core/declared type shapes, and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Element("wasi:cli/run#run").
//		CoreType("(i32) -> i32").
//		WitType("func() -> result").
//		Detail("declared world does not cover the exported signature").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingValue("--adapt")
//	err := errors.ExitStatus("wasm-ld", 1)
//
// All errors implement the standard error interface and support errors.Is/As.
// ExitCode maps any pipeline error to the stable process exit code for its
// category, with the external linker's own exit status propagated verbatim.
package errors
