package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/term"
)

// Hooks are the interactive developer affordances around Program.Run.
type Hooks interface {
	// Breakpoint pauses before the program runs.
	Breakpoint(ctx context.Context)
	// PostMortem inspects the program state after err escaped.
	PostMortem(ctx context.Context, err error)
	// Interactive reports whether PostMortem can talk to a user.
	Interactive() bool
}

// NopHooks never pause and are never interactive.
type NopHooks struct{}

func (NopHooks) Breakpoint(context.Context)        {}
func (NopHooks) PostMortem(context.Context, error) {}
func (NopHooks) Interactive() bool                 { return false }

// TerminalHooks pause the process so a debugger such as dlv can attach.
type TerminalHooks struct {
	In  io.Reader
	Out *os.File
	// Fs is used to detect an attached tracer through /proc.
	Fs afero.Fs
}

// NewTerminalHooks returns hooks on stdin and stderr.
func NewTerminalHooks() *TerminalHooks {
	return &TerminalHooks{
		In:  os.Stdin,
		Out: os.Stderr,
		Fs:  afero.NewOsFs(),
	}
}

func (h *TerminalHooks) Breakpoint(ctx context.Context) {
	pid := os.Getpid()
	_, _ = fmt.Fprintf(h.Out, "breakpoint: attach a debugger to pid %d (dlv attach %d), then press Enter\n", pid, pid)
	h.wait(ctx)
}

func (h *TerminalHooks) PostMortem(ctx context.Context, err error) {
	_, _ = fmt.Fprintf(h.Out, "post-mortem: %+v\n\n", err)

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	_, _ = h.Out.Write(buf[:n])

	pid := os.Getpid()
	_, _ = fmt.Fprintf(h.Out, "\npid %d is paused for inspection (dlv attach %d), press Enter to exit\n", pid, pid)
	h.wait(ctx)
}

// Interactive is true if stderr is a terminal and no debugger already traces
// the process.
func (h *TerminalHooks) Interactive() bool {
	if h.Out == nil || !term.IsTerminal(int(h.Out.Fd())) {
		return false
	}
	return !traced(h.Fs)
}

func (h *TerminalHooks) wait(ctx context.Context) {
	if h.In == nil {
		return
	}
	line := make(chan struct{})
	go func() {
		defer close(line)
		_, _ = bufio.NewReader(h.In).ReadString('\n')
	}()
	select {
	case <-line:
	case <-ctx.Done():
	}
}

// traced reports a non-zero TracerPid in /proc/self/status.
func traced(fs afero.Fs) bool {
	if fs == nil {
		return false
	}
	data, err := afero.ReadFile(fs, "/proc/self/status")
	if err != nil {
		return false
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		v, ok := bytes.CutPrefix(line, []byte("TracerPid:"))
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(string(bytes.TrimSpace(v)))
		return err == nil && pid != 0
	}
	return false
}
