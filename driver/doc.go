// Package driver runs one complete link. It locates and invokes the
// external core linker, inspects the module it produced, resolves
// adapters and interface metadata, and writes the encoded component
// to the destination.
//
// The linker never writes the destination directly. Its output is
// intercepted in a sibling workspace, transformed, and the finished
// artifact moves into place with one rename, so a failed run leaves
// no partial file behind. The exception is a link with
// componentization skipped, where the linked module is the artifact
// and the linker targets the destination itself.
package driver
