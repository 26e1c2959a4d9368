package lld

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/errors"
)

// Spawner runs one linker process to completion and reports its exit
// code. A non-nil error means the process never ran.
type Spawner func(ctx context.Context, program string, args []string) (int, error)

// Invoker runs the external linker.
type Invoker struct {
	Program Program

	// Spawn runs the child. Nil selects the real process spawner.
	Spawn Spawner

	// Verbose passes --verbose through to the linker.
	Verbose bool
}

// Run invokes the linker on the classified tokens, pointing it at
// output. The child's argument vector is exactly the tokens given,
// plus the flavor prefix, the verbose flag and the output pair this
// driver owns.
func (inv *Invoker) Run(ctx context.Context, tokens []string, output string) error {
	args := make([]string, 0, len(inv.Program.Args)+len(tokens)+3)
	args = append(args, inv.Program.Args...)
	args = append(args, tokens...)
	if inv.Verbose {
		args = append(args, "--verbose")
	}
	args = append(args, "-o", output)

	Logger().Debug("invoking external linker",
		zap.String("program", inv.Program.Path),
		zap.Strings("args", args))

	spawn := inv.Spawn
	if spawn == nil {
		spawn = spawnProcess
	}
	code, err := spawn(ctx, inv.Program.Path, args)
	if err != nil {
		return errors.New(errors.PhaseLink, errors.KindSpawnFailed).
			File(inv.Program.Path).
			Cause(err).
			Build()
	}
	if code != 0 {
		return errors.New(errors.PhaseLink, errors.KindExitStatus).
			Value(code).
			Detail("external linker exited with status %d", code).
			Build()
	}
	return nil
}

// spawnProcess runs program with inherited stdio. Cancelling the
// context relays SIGTERM to the child, with a kill after the wait
// delay so no orphan survives.
func spawnProcess(ctx context.Context, program string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	err := cmd.Run()
	var exit *exec.ExitError
	if stderrors.As(err, &exit) {
		return exit.ExitCode(), nil
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}
