package lld

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/errors"
)

// Program is a resolved linker location.
type Program struct {
	Path string

	// Args go before the classified tokens. rust-lld is a generic LLD
	// driver and needs the wasm flavor selected.
	Args []string
}

// Locate finds the external linker. An explicit path wins; otherwise a
// wasm-ld next to this executable, then wasm-ld on PATH, then rust-lld
// on PATH.
func Locate(explicit string) (Program, error) {
	var selfDir string
	if self, err := os.Executable(); err == nil {
		selfDir = filepath.Dir(self)
	}
	return locate(explicit, selfDir)
}

func locate(explicit, selfDir string) (Program, error) {
	if explicit != "" {
		return Program{Path: explicit}, nil
	}

	if selfDir != "" {
		adjacent := filepath.Join(selfDir, "wasm-ld"+exeSuffix())
		if info, err := os.Stat(adjacent); err == nil && !info.IsDir() {
			Logger().Debug("linker found next to executable", zap.String("path", adjacent))
			return Program{Path: adjacent}, nil
		}
	}
	if path, err := exec.LookPath("wasm-ld"); err == nil {
		Logger().Debug("linker found on PATH", zap.String("path", path))
		return Program{Path: path}, nil
	}
	if path, err := exec.LookPath("rust-lld"); err == nil {
		Logger().Debug("generic LLD driver found on PATH", zap.String("path", path))
		return Program{Path: path, Args: []string{"-flavor", "wasm"}}, nil
	}

	return Program{}, errors.New(errors.PhaseLink, errors.KindSpawnFailed).
		Detail("no linker found; searched for wasm-ld next to this executable, then wasm-ld and rust-lld on PATH").
		Build()
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
