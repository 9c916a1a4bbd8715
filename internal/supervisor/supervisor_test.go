package supervisor

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/gold"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

type testProgram struct {
	run     func(ctx context.Context) error
	options Record
	config  Record
}

func (p *testProgram) Run(ctx context.Context) error { return p.run(ctx) }
func (p *testProgram) Options() Record              { return p.options }
func (p *testProgram) Config() Record               { return p.config }

func failWith(err error) *testProgram {
	return &testProgram{run: func(context.Context) error { return err }}
}

type testHooks struct {
	interactive bool
	breakpoints int
	postMortems []error
}

func (h *testHooks) Breakpoint(context.Context)              { h.breakpoints++ }
func (h *testHooks) PostMortem(_ context.Context, err error) { h.postMortems = append(h.postMortems, err) }
func (h *testHooks) Interactive() bool                       { return h.interactive }

type testEnv struct {
	s      *Supervisor
	stderr *bytes.Buffer
	hooks  *testHooks
	fs     afero.Fs
}

func newTestEnv(t *testing.T, args ...string) *testEnv {
	t.Helper()

	env := &testEnv{
		stderr: new(bytes.Buffer),
		hooks:  &testHooks{},
		fs:     afero.NewMemMapFs(),
	}
	require.NoError(t, env.fs.MkdirAll("/work", 0o755))
	env.s = New(Params{
		Stderr: env.stderr,
		Args:   append([]string{"osc"}, args...),
		Hooks:  env.hooks,
		Fs:     env.fs,
		Dir:    "/work",
	})
	return env
}

func httpError(code int, body string) *oscerr.HTTPError {
	return &oscerr.HTTPError{
		URL:  "https://api.example.com/source/home:user/pkg",
		Code: code,
		Header: http.Header{
			"Content-Type": {"text/xml"},
		},
		Body: []byte(body),
	}
}

func TestRunSuccess(t *testing.T) {
	env := newTestEnv(t)
	code, err := env.s.Run(context.Background(), failWith(nil))
	require.NoError(t, err)
	require.Equal(t, ExitOK, code)
	require.Empty(t, env.stderr.String())
}

func TestRunClassification(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		code int
		out  string
	}{
		{
			name: "SignalInterrupt",
			err:  &oscerr.SignalInterrupt{Signal: syscall.SIGTERM},
			code: ExitFailure,
			out:  "killed!\n",
		},
		{
			name: "UserInterrupt",
			err:  &oscerr.UserInterrupt{},
			code: ExitFailure,
			out:  "interrupted!\n",
		},
		{
			name: "UserAbort",
			err:  errors.Wrap(&oscerr.UserAbort{}, "prompt"),
			code: ExitFailure,
			out:  "aborted.\n",
		},
		{
			name: "APIError",
			err:  &oscerr.APIError{Msg: "project does not exist"},
			code: ExitFailure,
			out:  "BuildService API error: project does not exist\n",
		},
		{
			name: "LinkExpandError",
			err:  &oscerr.LinkExpandError{Project: "openSUSE:Factory", Package: "vim", Msg: "conflict in file vim.spec"},
			code: ExitFailure,
			out: "Link \"openSUSE:Factory/vim\" cannot be expanded:\n" +
				"conflict in file vim.spec\n" +
				"Use \"osc repairlink\" to fix merge conflicts.\n",
		},
		{
			name: "WorkingCopyWrongVersion",
			err:  &oscerr.WorkingCopyWrongVersion{Msg: "store format 0.9 is not supported"},
			code: ExitFailure,
			out:  "store format 0.9 is not supported\n",
		},
		{
			name: "NoWorkingCopy",
			err:  &oscerr.NoWorkingCopy{Msg: "'/work' is not an osc working copy"},
			code: ExitFailure,
			out:  "'/work' is not an osc working copy\n",
		},
		{
			name: "HTTPErrorPlain",
			err:  httpError(409, "conflict"),
			code: ExitFailure,
			out:  "Server returned an error: HTTP Error 409: Conflict\n",
		},
		{
			name: "HTTPErrorSummary",
			err:  httpError(404, "<status code=\"unknown_package\"><summary>Not found</summary></status>"),
			code: ExitFailure,
			out:  "Server returned an error: HTTP Error 404: Not Found\nNot found\n",
		},
		{
			name: "HTTPErrorSummaryIgnoredStatus",
			err:  httpError(409, "<summary>Conflict</summary>"),
			code: ExitFailure,
			out:  "Server returned an error: HTTP Error 409: Conflict\n",
		},
		{
			name: "HTTPErrorUnreadableBody",
			err:  &oscerr.HTTPError{Code: 500, Msg: "while committing"},
			code: ExitFailure,
			out:  "Server returned an error: HTTP Error 500: Internal Server Error\nwhile committing\n",
		},
		{
			name: "BadStatusLine",
			err:  &oscerr.BadStatusLine{Line: "garbage"},
			code: ExitFailure,
			out:  "Server returned an invalid response: bad status line \"garbage\"\ngarbage\n",
		},
		{
			name: "HTTPException",
			err:  &oscerr.HTTPException{Msg: "unexpected EOF in chunked body"},
			code: ExitFailure,
			out:  "unexpected EOF in chunked body\n",
		},
		{
			name: "URLError",
			err:  &oscerr.URLError{URL: "https://api", Reason: syscall.ECONNREFUSED},
			code: ExitFailure,
			out:  "Failed to reach a server:\nconnection refused\n",
		},
		{
			name: "BrokenPipe",
			err:  &fs.PathError{Op: "write", Path: "/dev/stdout", Err: syscall.EPIPE},
			code: ExitFailure,
			out:  "",
		},
		{
			name: "NotFound",
			err:  errors.Wrap(&fs.PathError{Op: "open", Path: "_service", Err: syscall.ENOENT}, "read service"),
			code: ExitFailure,
			out:  "read service: open _service: no such file or directory\n",
		},
		{
			name: "ConfigError",
			err:  &oscerr.ConfigError{File: "oscrc", Msg: "apiurl is not a valid URL"},
			code: ExitFailure,
			out:  "apiurl is not a valid URL\n",
		},
		{
			name: "NoConfigfile",
			err:  &oscerr.NoConfigfile{File: "oscrc", Msg: "config file oscrc does not exist"},
			code: ExitFailure,
			out:  "config file oscrc does not exist\n",
		},
		{
			name: "OscIOError",
			err:  &oscerr.IOError{Msg: "cannot write _files", Err: syscall.EACCES},
			code: ExitFailure,
			out:  "cannot write _files\n",
		},
		{
			name: "WrongOptions",
			err:  &oscerr.WrongOptions{Msg: "unknown flag: --foo"},
			code: ExitUsage,
			out:  "unknown flag: --foo\n",
		},
		{
			name: "WrongArgs",
			err:  errors.Wrap(&oscerr.WrongArgs{Msg: "too many arguments"}, "status"),
			code: ExitUsage,
			out:  "too many arguments\n",
		},
		{
			name: "ExtRuntimeError",
			err:  &oscerr.ExtRuntimeError{File: "/usr/bin/build", Msg: "exit status 2"},
			code: ExitFailure,
			out:  "/usr/bin/build: exit status 2\n",
		},
		{
			name: "WorkingCopyOutdated",
			err:  &oscerr.WorkingCopyOutdated{Dir: "vim", LocalRev: "3", RemoteRev: "5"},
			code: ExitFailure,
			out:  "Working copy 'vim' is out of date (rev 3 vs rev 5).\nLooks as if you need to update it first.\n",
		},
		{
			name: "PackageExists",
			err:  &oscerr.PackageExists{Project: "p", Package: "k", Msg: "package k already exists"},
			code: ExitFailure,
			out:  "package k already exists\n",
		},
		{
			name: "PackageMissing",
			err:  &oscerr.PackageMissing{Project: "p", Package: "k", Msg: "package k is missing"},
			code: ExitFailure,
			out:  "package k is missing\n",
		},
		{
			name: "WorkingCopyInconsistent",
			err:  &oscerr.WorkingCopyInconsistent{Msg: "store is damaged", Files: []string{"_files"}},
			code: ExitFailure,
			out:  "store is damaged\n",
		},
		{
			name: "PackageError",
			err:  &oscerr.PackageError{Project: "p", Package: "k", Msg: "cannot delete"},
			code: ExitFailure,
			out:  "cannot delete\n",
		},
		{
			name: "PackageQueryError",
			err:  &oscerr.PackageQueryError{File: "vim.rpm", Msg: "invalid lead"},
			code: ExitFailure,
			out:  "vim.rpm: invalid lead\n",
		},
		{
			name: "RPMError",
			err:  &oscerr.RPMError{Msg: "error reading header"},
			code: ExitFailure,
			out:  "error reading header\n",
		},
		{
			name: "SSLError",
			err:  &oscerr.SSLError{Msg: "handshake failure"},
			code: ExitFailure,
			out:  "SSL Error: handshake failure\n",
		},
		{
			name: "SSLVerificationError",
			err:  &oscerr.SSLVerificationError{Msg: "x509: certificate signed by unknown authority"},
			code: ExitFailure,
			out:  "Certificate Verification Error: x509: certificate signed by unknown authority\n",
		},
		{
			name: "NoSecureSSLError",
			err:  &oscerr.NoSecureSSLError{Msg: "refusing to talk to http://api without TLS"},
			code: ExitFailure,
			out:  "refusing to talk to http://api without TLS\n",
		},
		{
			name: "CpioError",
			err:  &oscerr.CpioError{Msg: "bad magic"},
			code: ExitFailure,
			out:  "bad magic\n",
		},
		{
			name: "Base",
			err:  errors.Wrap(oscerr.New("something failed"), "commit"),
			code: ExitFailure,
			out:  "*** Error: something failed\n",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			code, err := env.s.Run(context.Background(), failWith(tt.err))
			require.NoError(t, err)
			require.Equal(t, tt.code, code)
			require.Equal(t, tt.out, env.stderr.String())
		})
	}
}

func TestRunPropagate(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
	}{
		{name: "Unknown", err: errors.New("unexpected")},
		{name: "UnexpectedEOF", err: errors.Wrap(io.ErrUnexpectedEOF, "read")},
		{name: "ClosedPipe", err: io.ErrClosedPipe},
		{name: "PermissionDenied", err: &fs.PathError{Op: "open", Path: "/etc/shadow", Err: syscall.EACCES}},
		{name: "Errno", err: syscall.EINVAL},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			code, err := env.s.Run(context.Background(), failWith(tt.err))
			require.Equal(t, ExitFailure, code)
			require.True(t, err == tt.err, "error must be returned unchanged")
			require.Empty(t, env.stderr.String())
		})
	}
}

func TestRunPanic(t *testing.T) {
	env := newTestEnv(t)
	code, err := env.s.Run(context.Background(), &testProgram{
		run: func(context.Context) error { panic("boom") },
	})
	require.Equal(t, ExitFailure, code)

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	require.Equal(t, "boom", panicErr.Value)
	require.NotEmpty(t, panicErr.Stack)
}

func TestRunPanicWithTaxonomyValue(t *testing.T) {
	env := newTestEnv(t)
	abort := &oscerr.UserAbort{}
	code, err := env.s.Run(context.Background(), &testProgram{
		run: func(context.Context) error { panic(abort) },
	})
	require.Equal(t, ExitFailure, code)
	require.Empty(t, env.stderr.String())

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	require.Same(t, abort, panicErr.Value)
}

func TestRunCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(&oscerr.SignalInterrupt{Signal: syscall.SIGHUP})

	code, err := env.s.Run(ctx, &testProgram{
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return errors.Wrap(ctx.Err(), "download")
		},
	})
	require.NoError(t, err)
	require.Equal(t, ExitFailure, code)
	require.Equal(t, "killed!\n", env.stderr.String())
}

func TestRunCancellationWithoutCause(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, err := env.s.Run(ctx, &testProgram{
		run: func(ctx context.Context) error { return ctx.Err() },
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, ExitFailure, code)
}

func TestRunNoWorkingCopyMarkers(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.fs.MkdirAll("/work/.git", 0o755))
	require.NoError(t, env.fs.MkdirAll("/work/CVS", 0o755))
	// Regular file, not a marker.
	require.NoError(t, afero.WriteFile(env.fs, "/work/.hg", []byte("x"), 0o644))

	code, err := env.s.Run(context.Background(), failWith(&oscerr.NoWorkingCopy{Msg: "not a working copy"}))
	require.NoError(t, err)
	require.Equal(t, ExitFailure, code)
	require.Equal(t, "not a working copy\n"+
		"Current directory looks like git.\n"+
		"Current directory looks like cvs.\n", env.stderr.String())
}

func TestRunHTTPDebug(t *testing.T) {
	env := newTestEnv(t)
	e := httpError(404, "<status code=\"unknown_package\">\n  <summary>Not found</summary>\n</status>")
	e.Header.Set("X-Opensuse-Errorcode", "unknown_package")
	e.Msg = "package is not on the server"

	p := failWith(e)
	p.config = Record{FlagDebug: "1"}

	code, err := env.s.Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, ExitFailure, code)
	require.Contains(t, env.stderr.String(), "X-Opensuse-Errorcode: unknown_package")
	require.Contains(t, env.stderr.String(), "<summary>Not found</summary>")

	gold.Str(t, env.stderr.String(), "http_debug.txt")
}

func TestRunOscIOErrorDebug(t *testing.T) {
	env := newTestEnv(t)
	p := failWith(&oscerr.IOError{Msg: "cannot write _files", Err: syscall.EACCES})
	p.options = Record{FlagDebug: true}

	code, err := env.s.Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, ExitFailure, code)
	require.Equal(t, "cannot write _files\npermission denied\n", env.stderr.String())
}

func TestRunPackageInternalError(t *testing.T) {
	env := newTestEnv(t)
	err := errors.Wrap(&oscerr.PackageInternalError{Project: "p", Package: "k", Msg: "file list mismatch"}, "commit")

	code, runErr := env.s.Run(context.Background(), failWith(err))
	require.NoError(t, runErr)
	require.Equal(t, ExitFailure, code)

	out := env.stderr.String()
	require.True(t, strings.HasPrefix(out, "a package internal error occurred\n"))
	require.Contains(t, out, "please file a bug")
	require.Contains(t, out, "file list mismatch\n")
	require.Contains(t, out, "commit")
}

func TestRunTraceback(t *testing.T) {
	err := errors.Wrap(&oscerr.APIError{Msg: "nope"}, "fetch meta")
	const diagnostic = "BuildService API error: nope\n"

	t.Run("Absent", func(t *testing.T) {
		env := newTestEnv(t)
		_, runErr := env.s.Run(context.Background(), failWith(err))
		require.NoError(t, runErr)
		require.Equal(t, diagnostic, env.stderr.String())
	})
	t.Run("Config", func(t *testing.T) {
		env := newTestEnv(t)
		p := failWith(err)
		p.config = Record{FlagTraceback: true}

		_, runErr := env.s.Run(context.Background(), p)
		require.NoError(t, runErr)
		out := env.stderr.String()
		require.True(t, strings.HasSuffix(out, diagnostic))
		require.Contains(t, strings.TrimSuffix(out, diagnostic), "fetch meta")
	})
	t.Run("OptionsOverrideConfig", func(t *testing.T) {
		env := newTestEnv(t)
		p := failWith(err)
		p.options = Record{FlagTraceback: false}
		p.config = Record{FlagTraceback: true}

		_, runErr := env.s.Run(context.Background(), p)
		require.NoError(t, runErr)
		require.Equal(t, diagnostic, env.stderr.String())
	})
	t.Run("NilOptionFallsBack", func(t *testing.T) {
		env := newTestEnv(t)
		p := failWith(err)
		p.options = Record{FlagTraceback: nil}
		p.config = Record{FlagTraceback: "yes"}

		_, runErr := env.s.Run(context.Background(), p)
		require.NoError(t, runErr)
		require.NotEqual(t, diagnostic, env.stderr.String())
	})
}

func TestRunPostMortem(t *testing.T) {
	err := &oscerr.UserAbort{}

	t.Run("Interactive", func(t *testing.T) {
		env := newTestEnv(t)
		env.hooks.interactive = true
		p := failWith(err)
		p.options = Record{FlagPostMortem: true}

		code, runErr := env.s.Run(context.Background(), p)
		require.NoError(t, runErr)
		require.Equal(t, ExitFailure, code)
		require.Equal(t, []error{err}, env.hooks.postMortems)
		require.True(t, strings.HasSuffix(env.stderr.String(), "aborted.\n"))
		require.NotContains(t, env.stderr.String(), "not a tty")
	})
	t.Run("NotInteractive", func(t *testing.T) {
		env := newTestEnv(t)
		p := failWith(err)
		p.config = Record{FlagPostMortem: "on"}

		code, runErr := env.s.Run(context.Background(), p)
		require.NoError(t, runErr)
		require.Equal(t, ExitFailure, code)
		require.Empty(t, env.hooks.postMortems)
		require.Contains(t, env.stderr.String(), "stderr is not a tty. Not entering post-mortem.\n")
		require.True(t, strings.HasSuffix(env.stderr.String(), "aborted.\n"))
	})
}

func TestRunDebugger(t *testing.T) {
	t.Run("Flag", func(t *testing.T) {
		env := newTestEnv(t, "status", DebuggerFlag)
		_, err := env.s.Run(context.Background(), failWith(nil))
		require.NoError(t, err)
		require.Equal(t, 1, env.hooks.breakpoints)
	})
	t.Run("NoFlag", func(t *testing.T) {
		env := newTestEnv(t, "status", "--debug")
		_, err := env.s.Run(context.Background(), failWith(nil))
		require.NoError(t, err)
		require.Zero(t, env.hooks.breakpoints)
	})
}

func TestRunIdempotent(t *testing.T) {
	for _, debug := range []bool{false, true} {
		env := newTestEnv(t)
		// Same handle and same failure value on every run.
		p := failWith(httpError(404, "<summary>gone</summary>"))
		p.options = Record{FlagDebug: debug}
		run := func() (int, string) {
			env.stderr.Reset()
			code, err := env.s.Run(context.Background(), p)
			require.NoError(t, err)
			return code, env.stderr.String()
		}

		code1, out1 := run()
		code2, out2 := run()
		require.Equal(t, code1, code2)
		require.Equal(t, out1, out2)
		require.True(t, strings.HasSuffix(out2, "gone\n"), "%q", out2)
	}
}

func TestRunStdlibInsideTaxonomy(t *testing.T) {
	// A taxonomy failure wrapping a missing file keeps its own category.
	env := newTestEnv(t)
	err := &oscerr.IOError{
		Msg: "cannot read _meta",
		Err: &fs.PathError{Op: "open", Path: "_meta", Err: syscall.ENOENT},
	}
	code, runErr := env.s.Run(context.Background(), failWith(err))
	require.NoError(t, runErr)
	require.Equal(t, ExitFailure, code)
	require.Equal(t, "cannot read _meta\n", env.stderr.String())
}
