package driver

import (
	"github.com/wippyai/wasm-component-ld/argv"
	"github.com/wippyai/wasm-component-ld/lld"
)

// Config carries one link run's inputs.
type Config struct {
	// Plan is the classified command line.
	Plan *argv.Plan

	// Spawn overrides process creation for the external linker.
	// Nil runs the real linker with inherited stdio.
	Spawn lld.Spawner
}
