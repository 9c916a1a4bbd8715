package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ernado/osc-babysitter/internal/signals"
	"github.com/ernado/osc-babysitter/internal/supervisor"
)

func main() {
	signals.IgnoreBrokenPipe()
	ctx, stop := signals.NotifyContext(context.Background(), signals.Names...)

	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	lg := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
			// Drop time key, diagnostics are read by humans.
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}),
	)

	s := supervisor.New(supervisor.Params{
		Hooks:  supervisor.NewTerminalHooks(),
		Logger: lg,
	})
	code, err := s.Run(ctx, newProgram(os.Args[1:], os.Stdout, lg, level))
	stop()
	if err != nil {
		// Outside of the taxonomy: a bug, report everything.
		_, _ = fmt.Fprintf(os.Stderr, "unhandled error: %+v\n", err)
	}
	os.Exit(code)
}
