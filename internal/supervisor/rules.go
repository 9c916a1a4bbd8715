package supervisor

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

type verdict struct {
	code      int
	propagate bool
}

var (
	failure   = verdict{code: ExitFailure}
	usage     = verdict{code: ExitUsage}
	propagate = verdict{code: ExitFailure, propagate: true}
)

// report is the state of a single classification.
type report struct {
	w     io.Writer
	err   error
	debug bool
	fs    afero.Fs
	dir   string
}

func (r *report) println(a ...any) {
	_, _ = fmt.Fprintln(r.w, a...)
}

func (r *report) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.w, format, a...)
}

type rule struct {
	name  string
	apply func(r *report, err error) (verdict, bool)
}

// match builds a rule for failures that have a T in their chain.
func match[T error](name string, fn func(r *report, e T) verdict) rule {
	return rule{
		name: name,
		apply: func(r *report, err error) (verdict, bool) {
			var target T
			if !errors.As(err, &target) {
				return verdict{}, false
			}
			return fn(r, target), true
		},
	}
}

// rules are checked in order, the first match wins. More specific failures
// must come before more general ones.
var rules = []rule{
	match("signal_interrupt", func(r *report, _ *oscerr.SignalInterrupt) verdict {
		r.println("killed!")
		return failure
	}),
	match("user_interrupt", func(r *report, _ *oscerr.UserInterrupt) verdict {
		r.println("interrupted!")
		return failure
	}),
	match("user_abort", func(r *report, _ *oscerr.UserAbort) verdict {
		r.println("aborted.")
		return failure
	}),
	match("api", func(r *report, e *oscerr.APIError) verdict {
		r.println("BuildService API error:", e.Msg)
		return failure
	}),
	match("link_expand", func(r *report, e *oscerr.LinkExpandError) verdict {
		r.printf("Link \"%s/%s\" cannot be expanded:\n%s\n", e.Project, e.Package, e.Msg)
		r.println(`Use "osc repairlink" to fix merge conflicts.`)
		return failure
	}),
	match("working_copy_wrong_version", func(r *report, e *oscerr.WorkingCopyWrongVersion) verdict {
		r.println(e)
		return failure
	}),
	match("no_working_copy", reportNoWorkingCopy),
	match("http", reportHTTP),
	match("bad_status_line", func(r *report, e *oscerr.BadStatusLine) verdict {
		r.println("Server returned an invalid response:", e)
		r.println(e.Line)
		return failure
	}),
	match("http_exception", func(r *report, e *oscerr.HTTPException) verdict {
		r.println(e)
		return failure
	}),
	match("url", func(r *report, e *oscerr.URLError) verdict {
		r.printf("Failed to reach a server:\n%v\n", e.Reason)
		return failure
	}),
	{name: "io", apply: classifyIO},
	{name: "os", apply: classifyOS},
	match("config", func(r *report, e *oscerr.ConfigError) verdict {
		r.println(e.Msg)
		return failure
	}),
	match("no_config_file", func(r *report, e *oscerr.NoConfigfile) verdict {
		r.println(e.Msg)
		return failure
	}),
	match("osc_io", func(r *report, e *oscerr.IOError) verdict {
		r.println(e.Msg)
		if r.debug && e.Err != nil {
			r.println(e.Err)
		}
		return failure
	}),
	match("wrong_options", func(r *report, e *oscerr.WrongOptions) verdict {
		r.println(e)
		return usage
	}),
	match("wrong_args", func(r *report, e *oscerr.WrongArgs) verdict {
		r.println(e)
		return usage
	}),
	match("ext_runtime", func(r *report, e *oscerr.ExtRuntimeError) verdict {
		r.printf("%s: %s\n", e.File, e.Msg)
		return failure
	}),
	match("working_copy_outdated", func(r *report, e *oscerr.WorkingCopyOutdated) verdict {
		r.println(e)
		return failure
	}),
	match("package_exists", func(r *report, e *oscerr.PackageExists) verdict {
		r.println(e.Msg)
		return failure
	}),
	match("package_missing", func(r *report, e *oscerr.PackageMissing) verdict {
		r.println(e.Msg)
		return failure
	}),
	match("working_copy_inconsistent", func(r *report, e *oscerr.WorkingCopyInconsistent) verdict {
		r.println(e.Msg)
		return failure
	}),
	match("package_internal", func(r *report, e *oscerr.PackageInternalError) verdict {
		r.println("a package internal error occurred\n" +
			"please file a bug and attach your current package working copy " +
			"and the following traceback to it:")
		r.println(e.Msg)
		r.printf("%+v\n", r.err)
		return failure
	}),
	match("package", func(r *report, e *oscerr.PackageError) verdict {
		r.println(e.Msg)
		return failure
	}),
	match("package_query", func(r *report, e *oscerr.PackageQueryError) verdict {
		r.printf("%s: %s\n", e.File, e.Msg)
		return failure
	}),
	match("rpm", func(r *report, e *oscerr.RPMError) verdict {
		r.println(e)
		return failure
	}),
	match("ssl", func(r *report, e *oscerr.SSLError) verdict {
		r.println("SSL Error:", e)
		return failure
	}),
	match("ssl_verification", func(r *report, e *oscerr.SSLVerificationError) verdict {
		r.println("Certificate Verification Error:", e)
		return failure
	}),
	match("no_secure_ssl", func(r *report, e *oscerr.NoSecureSSLError) verdict {
		r.println(e)
		return failure
	}),
	match("cpio", func(r *report, e *oscerr.CpioError) verdict {
		r.println(e)
		return failure
	}),
	match("base", func(r *report, e oscerr.Error) verdict {
		r.println("*** Error:", e)
		return failure
	}),
}

var vcsMarkers = []struct {
	dir  string
	name string
}{
	{dir: ".git", name: "git"},
	{dir: ".hg", name: "mercurial"},
	{dir: ".svn", name: "svn"},
	{dir: "CVS", name: "cvs"},
}

func reportNoWorkingCopy(r *report, e *oscerr.NoWorkingCopy) verdict {
	r.println(e)
	for _, m := range vcsMarkers {
		if ok, _ := afero.DirExists(r.fs, filepath.Join(r.dir, m.dir)); ok {
			r.printf("Current directory looks like %s.\n", m.name)
		}
	}
	return failure
}

// summaryCodes are the statuses whose body may carry a <summary> element.
var summaryCodes = map[int]bool{
	400: true,
	403: true,
	404: true,
	500: true,
}

func reportHTTP(r *report, e *oscerr.HTTPError) verdict {
	r.println("Server returned an error:", e)
	if e.Msg != "" {
		r.println(e.Msg)
	}

	body, err := e.ReadBody()
	if err != nil {
		body = ""
	}
	if r.debug {
		_, _ = io.WriteString(r.w, e.Headers())
		r.println(body)
	}
	if summaryCodes[e.Code] {
		if msg, ok := summary(body); ok {
			r.println(msg)
		}
	}
	return failure
}

// summary extracts the text between <summary> and </summary>.
func summary(body string) (string, bool) {
	_, rest, ok := strings.Cut(body, "<summary>")
	if !ok {
		return "", false
	}
	msg, _, _ := strings.Cut(rest, "</summary>")
	return msg, true
}

// foreign reports that err does not belong to the client taxonomy. Standard
// library rows only apply to such failures, so a taxonomy error wrapping a
// system error keeps its own category.
func foreign(err error) bool {
	var e oscerr.Error
	return !errors.As(err, &e)
}

// classifyIO swallows broken pipes and propagates other stream failures.
func classifyIO(_ *report, err error) (verdict, bool) {
	if !foreign(err) {
		return verdict{}, false
	}
	if errors.Is(err, syscall.EPIPE) {
		return failure, true
	}
	for _, target := range []error{
		io.ErrClosedPipe,
		io.ErrShortWrite,
		io.ErrUnexpectedEOF,
		fs.ErrClosed,
	} {
		if errors.Is(err, target) {
			return propagate, true
		}
	}
	return verdict{}, false
}

// classifyOS reports missing files and propagates other system failures.
func classifyOS(r *report, err error) (verdict, bool) {
	if !foreign(err) || !isOSError(err) {
		return verdict{}, false
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return propagate, true
	}
	r.println(err)
	return failure, true
}

func isOSError(err error) bool {
	var (
		pathErr    *fs.PathError
		linkErr    *os.LinkError
		syscallErr *os.SyscallError
		errno      syscall.Errno
	)
	return errors.As(err, &pathErr) ||
		errors.As(err, &linkErr) ||
		errors.As(err, &syscallErr) ||
		errors.As(err, &errno)
}
