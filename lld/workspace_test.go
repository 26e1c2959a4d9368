package lld

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-component-ld/errors"
)

func TestWorkspacePlacement(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.wasm")

	w, err := NewWorkspace(dest)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if filepath.Base(w.Path) != "out.wasm" {
		t.Errorf("intercept name = %q, want the destination's", filepath.Base(w.Path))
	}
	if filepath.Dir(w.Path) != w.Dir {
		t.Errorf("intercept %q not inside workspace %q", w.Path, w.Dir)
	}
	if filepath.Dir(w.Dir) != dir {
		t.Errorf("workspace %q not beside destination %q", w.Dir, dest)
	}
	if !strings.Contains(filepath.Base(w.Dir), "out.wasm") {
		t.Errorf("workspace %q not named after destination", w.Dir)
	}

	if err := os.WriteFile(w.Path, []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(w.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after Close: %v", err)
	}
}

func TestWorkspaceBareName(t *testing.T) {
	t.Chdir(t.TempDir())

	w, err := NewWorkspace("out.wasm")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	defer w.Close()
	if filepath.Dir(w.Dir) != "." {
		t.Fatalf("workspace %q, want it in the working directory", w.Dir)
	}
}

func TestWorkspaceNoFileName(t *testing.T) {
	for _, dest := range []string{".", ".."} {
		_, err := NewWorkspace(dest)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidData {
			t.Errorf("NewWorkspace(%q) err = %v, want invalid_data", dest, err)
		}
	}
}
