// Package oscerr defines the closed set of failures the osc client reports.
//
// Every type carries a Kind. The supervisor matches on concrete types in a
// fixed order, and falls back to the Error interface for anything else that
// belongs to the client.
package oscerr

import (
	"fmt"
	"os"
	"strings"
)

// Kind tags a failure with its taxonomy row.
type Kind int

const (
	KindUnknown Kind = iota
	KindSignalInterrupt
	KindUserInterrupt
	KindUserAbort
	KindAPI
	KindLinkExpand
	KindWorkingCopyWrongVersion
	KindNoWorkingCopy
	KindHTTP
	KindBadStatusLine
	KindHTTPException
	KindURL
	KindConfig
	KindIO
	KindUsage
	KindExtRuntime
	KindWorkingCopyOutdated
	KindPackageState
	KindPackageInternal
	KindPackage
	KindPackageQuery
	KindRPM
	KindSSL
	KindSSLVerification
	KindNoSecureSSL
	KindCpio
	KindBase
)

var kindNames = [...]string{
	KindUnknown:                 "unknown",
	KindSignalInterrupt:         "signal_interrupt",
	KindUserInterrupt:           "user_interrupt",
	KindUserAbort:               "user_abort",
	KindAPI:                     "api",
	KindLinkExpand:              "link_expand",
	KindWorkingCopyWrongVersion: "working_copy_wrong_version",
	KindNoWorkingCopy:           "no_working_copy",
	KindHTTP:                    "http",
	KindBadStatusLine:           "bad_status_line",
	KindHTTPException:           "http_exception",
	KindURL:                     "url",
	KindConfig:                  "config",
	KindIO:                      "io",
	KindUsage:                   "usage",
	KindExtRuntime:              "ext_runtime",
	KindWorkingCopyOutdated:     "working_copy_outdated",
	KindPackageState:            "package_state",
	KindPackageInternal:         "package_internal",
	KindPackage:                 "package",
	KindPackageQuery:            "package_query",
	KindRPM:                     "rpm",
	KindSSL:                     "ssl",
	KindSSLVerification:         "ssl_verification",
	KindNoSecureSSL:             "no_secure_ssl",
	KindCpio:                    "cpio",
	KindBase:                    "base",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is implemented by every failure of the client's own taxonomy.
type Error interface {
	error
	Kind() Kind
}

// Base is a client failure without a more specific category.
type Base struct {
	Msg string
}

// New returns a Base failure.
func New(msg string) *Base { return &Base{Msg: msg} }

// Errorf formats a Base failure.
func Errorf(format string, args ...any) *Base {
	return &Base{Msg: fmt.Sprintf(format, args...)}
}

func (e *Base) Error() string { return e.Msg }
func (e *Base) Kind() Kind    { return KindBase }

// SignalInterrupt is the cancellation condition: a termination signal
// arrived while the program was running.
type SignalInterrupt struct {
	Signal os.Signal
}

func (e *SignalInterrupt) Error() string {
	if e.Signal == nil {
		return "killed"
	}
	return "killed by " + e.Signal.String()
}
func (e *SignalInterrupt) Kind() Kind { return KindSignalInterrupt }

// UserInterrupt is a keyboard break.
type UserInterrupt struct{}

func (e *UserInterrupt) Error() string { return "interrupted" }
func (e *UserInterrupt) Kind() Kind    { return KindUserInterrupt }

// UserAbort means the user declined an interactive prompt.
type UserAbort struct{}

func (e *UserAbort) Error() string { return "aborted" }
func (e *UserAbort) Kind() Kind    { return KindUserAbort }

// APIError is an error status reported by the build service itself.
type APIError struct {
	Msg string
}

func (e *APIError) Error() string { return e.Msg }
func (e *APIError) Kind() Kind    { return KindAPI }

// LinkExpandError means a linked package could not be expanded.
type LinkExpandError struct {
	Project string
	Package string
	Msg     string
}

func (e *LinkExpandError) Error() string {
	return fmt.Sprintf("link %s/%s cannot be expanded: %s", e.Project, e.Package, e.Msg)
}
func (e *LinkExpandError) Kind() Kind { return KindLinkExpand }

// WorkingCopyWrongVersion means the store format of a working copy is not
// the one this client understands.
type WorkingCopyWrongVersion struct {
	Msg string
}

func (e *WorkingCopyWrongVersion) Error() string { return e.Msg }
func (e *WorkingCopyWrongVersion) Kind() Kind    { return KindWorkingCopyWrongVersion }

// NoWorkingCopy means a directory is not an osc working copy.
type NoWorkingCopy struct {
	Msg string
}

func (e *NoWorkingCopy) Error() string { return e.Msg }
func (e *NoWorkingCopy) Kind() Kind    { return KindNoWorkingCopy }

// BadStatusLine means the server answered with an unparsable status line.
type BadStatusLine struct {
	Line string
}

func (e *BadStatusLine) Error() string { return fmt.Sprintf("bad status line %q", e.Line) }
func (e *BadStatusLine) Kind() Kind    { return KindBadStatusLine }

// HTTPException is any other HTTP protocol failure.
type HTTPException struct {
	Msg string
}

func (e *HTTPException) Error() string { return e.Msg }
func (e *HTTPException) Kind() Kind    { return KindHTTPException }

// URLError means the server could not be reached at all.
type URLError struct {
	URL    string
	Reason error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.URL, e.Reason)
}
func (e *URLError) Unwrap() error { return e.Reason }
func (e *URLError) Kind() Kind    { return KindURL }

// ConfigError means the configuration file is invalid.
type ConfigError struct {
	File string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return e.File + ": " + e.Msg
}
func (e *ConfigError) Kind() Kind { return KindConfig }

// NoConfigfile means an explicitly requested configuration file is missing.
type NoConfigfile struct {
	File string
	Msg  string
}

func (e *NoConfigfile) Error() string { return e.Msg }
func (e *NoConfigfile) Kind() Kind    { return KindConfig }

// IOError is a local filesystem failure that wraps its cause.
type IOError struct {
	Msg string
	Err error
}

func (e *IOError) Error() string { return e.Msg }
func (e *IOError) Unwrap() error { return e.Err }
func (e *IOError) Kind() Kind    { return KindIO }

// WrongOptions is invalid command-line option usage.
type WrongOptions struct {
	Msg string
}

func (e *WrongOptions) Error() string { return e.Msg }
func (e *WrongOptions) Kind() Kind    { return KindUsage }

// WrongArgs is an invalid number or shape of positional arguments.
type WrongArgs struct {
	Msg string
}

func (e *WrongArgs) Error() string { return e.Msg }
func (e *WrongArgs) Kind() Kind    { return KindUsage }

// ExtRuntimeError means an external helper program failed.
type ExtRuntimeError struct {
	File string
	Msg  string
}

func (e *ExtRuntimeError) Error() string { return e.File + ": " + e.Msg }
func (e *ExtRuntimeError) Kind() Kind    { return KindExtRuntime }

// WorkingCopyOutdated means the working copy is behind the server.
type WorkingCopyOutdated struct {
	Dir       string
	LocalRev  string
	RemoteRev string
}

func (e *WorkingCopyOutdated) Error() string {
	return fmt.Sprintf("Working copy '%s' is out of date (rev %s vs rev %s).\n"+
		"Looks as if you need to update it first.", e.Dir, e.LocalRev, e.RemoteRev)
}
func (e *WorkingCopyOutdated) Kind() Kind { return KindWorkingCopyOutdated }

// PackageExists means a package is already present.
type PackageExists struct {
	Project string
	Package string
	Msg     string
}

func (e *PackageExists) Error() string { return e.Msg }
func (e *PackageExists) Kind() Kind    { return KindPackageState }

// PackageMissing means a package is expected but absent.
type PackageMissing struct {
	Project string
	Package string
	Msg     string
}

func (e *PackageMissing) Error() string { return e.Msg }
func (e *PackageMissing) Kind() Kind    { return KindPackageState }

// WorkingCopyInconsistent means the store of a working copy is damaged.
type WorkingCopyInconsistent struct {
	Project string
	Package string
	Files   []string
	Msg     string
}

func (e *WorkingCopyInconsistent) Error() string {
	if len(e.Files) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Files, ", ")
}
func (e *WorkingCopyInconsistent) Kind() Kind { return KindPackageState }

// PackageInternalError is a violated package handling invariant, a bug.
type PackageInternalError struct {
	Project string
	Package string
	Msg     string
}

func (e *PackageInternalError) Error() string { return e.Msg }
func (e *PackageInternalError) Kind() Kind    { return KindPackageInternal }

// PackageError is a generic package handling failure.
type PackageError struct {
	Project string
	Package string
	Msg     string
}

func (e *PackageError) Error() string { return e.Msg }
func (e *PackageError) Kind() Kind    { return KindPackage }

// PackageQueryError is a parse or validation failure of a package file.
type PackageQueryError struct {
	File string
	Msg  string
}

func (e *PackageQueryError) Error() string { return e.File + ": " + e.Msg }
func (e *PackageQueryError) Kind() Kind    { return KindPackageQuery }

// RPMError is a native error of the packaging tool.
type RPMError struct {
	Msg string
}

func (e *RPMError) Error() string { return e.Msg }
func (e *RPMError) Kind() Kind    { return KindRPM }

// SSLError is a TLS handshake or record failure.
type SSLError struct {
	Msg string
	Err error
}

func (e *SSLError) Error() string { return e.Msg }
func (e *SSLError) Unwrap() error { return e.Err }
func (e *SSLError) Kind() Kind    { return KindSSL }

// SSLVerificationError means the server certificate was rejected.
type SSLVerificationError struct {
	Msg string
	Err error
}

func (e *SSLVerificationError) Error() string { return e.Msg }
func (e *SSLVerificationError) Unwrap() error { return e.Err }
func (e *SSLVerificationError) Kind() Kind    { return KindSSLVerification }

// NoSecureSSLError guards against talking to the service without TLS.
type NoSecureSSLError struct {
	Msg string
}

func (e *NoSecureSSLError) Error() string { return e.Msg }
func (e *NoSecureSSLError) Kind() Kind    { return KindNoSecureSSL }

// CpioError is an archive decode failure.
type CpioError struct {
	File string
	Msg  string
}

func (e *CpioError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return e.File + ": " + e.Msg
}
func (e *CpioError) Kind() Kind { return KindCpio }
