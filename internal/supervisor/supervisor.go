// Package supervisor runs the client and turns every failure into a
// diagnostic on stderr and a process exit code.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// DebuggerFlag in the raw argument list triggers Hooks.Breakpoint.
const DebuggerFlag = "--debugger"

// Recognized flags of the options and configuration records.
const (
	FlagTraceback  = "traceback"
	FlagPostMortem = "post_mortem"
	FlagDebug      = "debug"
)

// Program is the client driven by the supervisor.
type Program interface {
	Run(ctx context.Context) error
	// Options is the parsed command line.
	Options() Record
	// Config is the fallback for flags missing from Options.
	Config() Record
}

// Params of Supervisor.
type Params struct {
	// Stderr receives all diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	// Args is the raw argument list. Defaults to os.Args.
	Args []string
	// Hooks default to NopHooks.
	Hooks Hooks
	// Fs and Dir are used to look for foreign version control markers.
	// Defaults are the OS filesystem and the current directory.
	Fs  afero.Fs
	Dir string
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

func (p *Params) setDefaults() {
	if p.Stderr == nil {
		p.Stderr = os.Stderr
	}
	if p.Args == nil {
		p.Args = os.Args
	}
	if p.Hooks == nil {
		p.Hooks = NopHooks{}
	}
	if p.Fs == nil {
		p.Fs = afero.NewOsFs()
	}
	if p.Dir == "" {
		p.Dir = "."
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
}

// Supervisor owns the top-level invocation of a Program.
type Supervisor struct {
	stderr io.Writer
	args   []string
	hooks  Hooks
	fs     afero.Fs
	dir    string
	lg     *slog.Logger
}

// New creates a Supervisor.
func New(p Params) *Supervisor {
	p.setDefaults()
	return &Supervisor{
		stderr: p.Stderr,
		args:   p.Args,
		hooks:  p.Hooks,
		fs:     p.Fs,
		dir:    p.Dir,
		lg:     p.Logger,
	}
}

// Run invokes p and returns the process exit code.
//
// A non-nil error is a failure outside of the handled taxonomy, returned
// unchanged. The caller must treat it as fatal.
func (s *Supervisor) Run(ctx context.Context, p Program) (int, error) {
	if slices.Contains(s.args, DebuggerFlag) {
		s.hooks.Breakpoint(ctx)
	}

	err := s.invoke(ctx, p)
	if err == nil {
		return ExitOK, nil
	}
	err = cancellationCause(ctx, err)

	s.inspect(ctx, p, err)
	return s.classify(p, err)
}

func (s *Supervisor) invoke(ctx context.Context, p Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return p.Run(ctx)
}

// cancellationCause replaces context.Canceled with the signal that caused it.
func cancellationCause(ctx context.Context, err error) error {
	if !errors.Is(err, context.Canceled) {
		return err
	}
	var cause oscerr.Error
	if errors.As(context.Cause(ctx), &cause) {
		return cause
	}
	return err
}

// inspect runs the trace and post-mortem hooks.
func (s *Supervisor) inspect(ctx context.Context, p Program, err error) {
	postMortem := flag(p, FlagPostMortem)
	if flag(p, FlagTraceback) || postMortem {
		_, _ = fmt.Fprintf(s.stderr, "%+v\n", err)
	}
	if !postMortem {
		return
	}
	if !s.hooks.Interactive() {
		_, _ = fmt.Fprintln(s.stderr, "stderr is not a tty. Not entering post-mortem.")
		return
	}
	s.hooks.PostMortem(ctx, err)
}

func (s *Supervisor) classify(p Program, err error) (int, error) {
	// Panics are programming errors, whatever value they carry.
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		s.lg.Debug("Panic propagated", "value", panicErr.Value)
		return ExitFailure, err
	}

	r := &report{
		w:     s.stderr,
		err:   err,
		debug: flag(p, FlagDebug),
		fs:    s.fs,
		dir:   s.dir,
	}
	for _, rule := range rules {
		v, ok := rule.apply(r, err)
		if !ok {
			continue
		}
		s.lg.Debug("Failure classified",
			"rule", rule.name,
			"code", v.code,
			"propagate", v.propagate,
		)
		if v.propagate {
			return ExitFailure, err
		}
		return v.code, nil
	}

	s.lg.Debug("Failure not classified", "err", err)
	return ExitFailure, err
}
