package executor

import (
	"context"
	"os/exec"
)

// Executor abstracts process execution so that tests can substitute a
// recorded double for the real binary.
type Executor interface {
	Command(ctx context.Context, name string, arg ...string) Command
}

type Command interface {
	SetDir(dir string)
	CombinedOutput() ([]byte, error)
}

// BinaryFileExecutor runs real processes. Cancelling the context kills
// the process outright.
type BinaryFileExecutor struct{}

var _ Executor = BinaryFileExecutor{}

func (BinaryFileExecutor) Command(ctx context.Context, name string, arg ...string) Command {
	return &binaryCommand{
		cmd: exec.CommandContext(ctx, name, arg...),
	}
}

type binaryCommand struct {
	cmd *exec.Cmd
}

func (b *binaryCommand) SetDir(dir string) {
	b.cmd.Dir = dir
}

func (b *binaryCommand) CombinedOutput() ([]byte, error) {
	return b.cmd.CombinedOutput()
}
