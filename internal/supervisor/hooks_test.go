package supervisor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestTraced(t *testing.T) {
	for _, tt := range []struct {
		name   string
		status string
		traced bool
	}{
		{name: "NotTraced", status: "Name:\tosc\nTracerPid:\t0\n"},
		{name: "Traced", status: "Name:\tosc\nTracerPid:\t4242\n", traced: true},
		{name: "NoField", status: "Name:\tosc\n"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/proc/self/status", []byte(tt.status), 0o444))
			require.Equal(t, tt.traced, traced(fs))
		})
	}
	t.Run("Missing", func(t *testing.T) {
		require.False(t, traced(afero.NewMemMapFs()))
		require.False(t, traced(nil))
	})
}

func testHooksFile(t *testing.T) *os.File {
	t.Helper()

	f, err := os.Create(filepath.Join(t.TempDir(), "stderr"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestTerminalHooksNotInteractive(t *testing.T) {
	h := &TerminalHooks{
		In:  strings.NewReader(""),
		Out: testHooksFile(t),
		Fs:  afero.NewMemMapFs(),
	}
	require.False(t, h.Interactive())
}

func TestTerminalHooksPostMortem(t *testing.T) {
	out := testHooksFile(t)
	h := &TerminalHooks{
		In:  strings.NewReader("\n"),
		Out: out,
		Fs:  afero.NewMemMapFs(),
	}
	h.PostMortem(context.Background(), errors.New("boom"))
	h.Breakpoint(context.Background())

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("post-mortem: boom")))
	require.Contains(t, string(data), "goroutine ")
	require.Contains(t, string(data), "breakpoint: attach a debugger to pid")
}

func TestTerminalHooksWaitCancelled(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = w.Close()
		_ = r.Close()
	})

	h := &TerminalHooks{In: r, Out: testHooksFile(t)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Must return without input.
	h.Breakpoint(ctx)
}
