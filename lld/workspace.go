package lld

import (
	"os"
	"path/filepath"

	"github.com/wippyai/wasm-component-ld/errors"
)

// Workspace is the intercept location for the linker's raw output,
// scoped to one invocation.
type Workspace struct {
	// Dir is the temporary directory, created next to the destination.
	Dir string

	// Path carries the destination's file name inside Dir. The linker
	// records that name in the module's name section, so linking into
	// an unrelated temp path would bake a misleading name into the
	// artifact.
	Path string
}

// NewWorkspace creates the intercept directory beside dest.
func NewWorkspace(dest string) (*Workspace, error) {
	name := filepath.Base(dest)
	if name == "." || name == ".." || name == string(os.PathSeparator) {
		return nil, errors.New(errors.PhaseWrite, errors.KindInvalidData).
			File(dest).
			Detail("output path has no file name").
			Build()
	}
	parent := filepath.Dir(dest)
	dir, err := os.MkdirTemp(parent, "."+name+"-")
	if err != nil {
		return nil, errors.IO(errors.PhaseWrite, parent, err)
	}
	return &Workspace{Dir: dir, Path: filepath.Join(dir, name)}, nil
}

// Close removes the workspace and anything intercepted in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}
