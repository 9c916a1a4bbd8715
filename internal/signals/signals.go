// Package signals converts termination requests into context cancellation.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

// Names lists the termination requests handled by NotifyContext.
//
// Not every platform defines every name; undefined ones are skipped.
var Names = []string{"SIGBREAK", "SIGHUP", "SIGTERM"}

// known maps signal names to the values defined by the host platform.
var known = map[string]os.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGTERM": syscall.SIGTERM,
}

// Lookup resolves names to signals, skipping names the platform lacks.
func Lookup(names []string) []os.Signal {
	var out []os.Signal
	for _, name := range names {
		sig, ok := known[name]
		if !ok {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// NotifyContext returns a copy of parent that is cancelled when a signal
// arrives.
//
// Signals resolved from names cancel with *oscerr.SignalInterrupt as cause,
// os.Interrupt cancels with *oscerr.UserInterrupt. Use context.Cause to get
// it. Only the first signal is handled: later ones get the default
// disposition, so a second request terminates a program that ignores ctx.
func NotifyContext(parent context.Context, names ...string) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	terminate := Lookup(names)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, append([]os.Signal{os.Interrupt}, terminate...)...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			signal.Stop(ch)
			cancel(cause(sig))
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel(context.Canceled)
	}
}

func cause(sig os.Signal) error {
	if sig == os.Interrupt {
		return &oscerr.UserInterrupt{}
	}
	return &oscerr.SignalInterrupt{Signal: sig}
}

// IgnoreBrokenPipe makes writes to a closed stdout fail with EPIPE instead
// of terminating the process.
func IgnoreBrokenPipe() {
	signal.Ignore(syscall.SIGPIPE)
}
