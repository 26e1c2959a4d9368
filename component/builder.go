package component

import (
	"github.com/wippyai/wasm-component-ld/errors"
)

// Build phases, in the only order the encoder may emit sections. The
// builder enforces the transition table so an assembly bug surfaces as
// an encode-internal error instead of a malformed binary.
type buildPhase int

const (
	phaseStart buildPhase = iota
	phaseTypes
	phaseImports
	phaseImportAliases
	phaseLowers
	phaseModules
	phaseInstances
	phaseCoreAliases
	phaseLifts
	phaseExports
	phaseCustom
)

var phaseNames = [...]string{
	phaseStart:         "start",
	phaseTypes:         "types",
	phaseImports:       "imports",
	phaseImportAliases: "import aliases",
	phaseLowers:        "lowers",
	phaseModules:       "core modules",
	phaseInstances:     "core instances",
	phaseCoreAliases:   "core aliases",
	phaseLifts:         "lifts",
	phaseExports:       "exports",
	phaseCustom:        "custom",
}

// Phases that span several sections of the same id.
var repeatablePhases = [...]bool{
	phaseLowers:  true,
	phaseModules: true,
	phaseLifts:   true,
	phaseCustom:  true,
}

func (p buildPhase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func (p buildPhase) repeatable() bool {
	return int(p) < len(repeatablePhases) && repeatablePhases[p]
}

type builder struct {
	buf   []byte
	phase buildPhase
}

func newBuilder(capacity int) *builder {
	b := &builder{buf: make([]byte, 0, capacity)}
	b.buf = append(b.buf, componentPreamble...)
	return b
}

// section appends one framed section. Phases may only advance; a phase
// repeats only if its table entry allows it.
func (b *builder) section(p buildPhase, id byte, payload []byte) error {
	if p < b.phase || (p == b.phase && !p.repeatable()) {
		return errors.EncodeInternal("%s section emitted after %s", p, b.phase)
	}
	b.phase = p
	b.buf = appendSection(b.buf, id, payload)
	return nil
}

func (b *builder) bytes() []byte {
	return b.buf
}
