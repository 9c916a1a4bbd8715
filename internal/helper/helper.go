// Package helper runs external helper programs.
package helper

import (
	"context"
	"io"
	"os/exec"
	"syscall"

	"github.com/go-faster/errors"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

// Command is an external program invocation.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes c and waits for it to finish.
//
// Failures of the program itself are reported as *oscerr.ExtRuntimeError.
// Cancellation of ctx is returned as the context error, a program killed by
// SIGINT as *oscerr.UserInterrupt.
func Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, "run %s", c.Name)
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return &oscerr.ExtRuntimeError{File: c.Name, Msg: "program not found"}
	case errors.As(err, &exitErr):
		// Terminal Ctrl-C reaches the child too and may win the race
		// against cancellation of ctx.
		if interrupted(exitErr) {
			return errors.Wrapf(&oscerr.UserInterrupt{}, "run %s", c.Name)
		}
		return &oscerr.ExtRuntimeError{File: c.Name, Msg: exitErr.Error()}
	default:
		return &oscerr.ExtRuntimeError{File: c.Name, Msg: err.Error()}
	}
}

func interrupted(err *exec.ExitError) bool {
	status, ok := err.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == syscall.SIGINT
}
