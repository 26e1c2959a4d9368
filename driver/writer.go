package driver

import (
	"os"
	"path/filepath"

	"github.com/wippyai/wasm-component-ld/errors"
)

// writeArtifact places data at dest atomically. The bytes land in a
// sibling temp file first and move into place with one rename, so a
// crash mid-write never leaves a truncated artifact under the
// destination name.
func writeArtifact(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+"-*")
	if err != nil {
		return errors.IO(errors.PhaseWrite, dir, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.IO(errors.PhaseWrite, tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.IO(errors.PhaseWrite, tmp, err)
	}
	if err := f.Close(); err != nil {
		return errors.IO(errors.PhaseWrite, tmp, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return errors.IO(errors.PhaseWrite, tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errors.IO(errors.PhaseWrite, dest, err)
	}
	return nil
}
