// Package adapter selects the adapter modules that satisfy legacy
// system-interface imports of a linked core module.
//
// A module produced for the historical wasi_snapshot_preview1 interface
// cannot import it from a component host directly; instead a small core
// module is embedded alongside it that exports the legacy surface. The
// resolver picks one adapter per adapted namespace: a user-supplied
// module (--adapt) when given, otherwise a synthesized built-in whose
// system calls all answer ERRNO_NOSYS. Built-ins come in three flavors,
// chosen by the linked module's shape: command for modules with a
// _start entry, reactor otherwise, proxy on request.
package adapter
