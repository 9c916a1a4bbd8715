// Package api is a minimal client of the build service HTTP API.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

// maxErrorBody limits how much of an error response is buffered.
const maxErrorBody = 1 << 20

// Options of Client.
type Options struct {
	HTTPClient *http.Client
	// AllowHTTP permits plain http API URLs.
	AllowHTTP bool
	// Headers are set on every request.
	Headers map[string]string
	Logger  *slog.Logger
}

func (o *Options) setDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// Client of the build service.
type Client struct {
	base    *url.URL
	http    *http.Client
	headers map[string]string
	lg      *slog.Logger
}

// New creates a Client for apiurl.
func New(apiurl string, opts Options) (*Client, error) {
	opts.setDefaults()

	u, err := url.Parse(apiurl)
	if err != nil || u.Host == "" {
		return nil, &oscerr.ConfigError{Msg: "invalid apiurl " + strconv.Quote(apiurl)}
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return nil, &oscerr.NoSecureSSLError{
				Msg: "refusing to talk to " + apiurl + " without TLS, set allow_http to override",
			}
		}
	default:
		return nil, &oscerr.ConfigError{Msg: "unsupported apiurl scheme " + strconv.Quote(u.Scheme)}
	}

	return &Client{
		base:    u,
		http:    opts.HTTPClient,
		headers: opts.Headers,
		lg:      opts.Logger,
	}, nil
}

// Request to the build service.
type Request struct {
	Method string
	Path   string
	Body   io.Reader
	// Note is attached to the HTTP error if the request fails.
	Note string
}

// Do sends req and returns the response if its status is 2xx.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u := c.base.JoinPath(req.Path).String()

	r, err := http.NewRequestWithContext(ctx, method, u, req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for k, v := range c.headers {
		r.Header.Set(k, v)
	}

	c.lg.Debug("Request", "method", method, "url", u)
	resp, err := c.http.Do(r)
	if err != nil {
		return nil, transportError(ctx, u, err)
	}
	c.lg.Debug("Response", "url", u, "status", resp.StatusCode)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	// Best effort, a partial body is still useful for the diagnostic.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &oscerr.HTTPError{
		URL:    u,
		Code:   resp.StatusCode,
		Reason: reason(resp),
		Header: resp.Header,
		Body:   body,
		Msg:    req.Note,
	}
}

// Get writes the body of a successful GET of path to w.
func (c *Client) Get(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.Do(ctx, Request{Path: path})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, resp.Request.URL.String(), err)
	}
	if err := statusError(data); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write")
	}
	return nil
}

type directory struct {
	XMLName xml.Name `xml:"directory"`
	Name    string   `xml:"name,attr"`
	Rev     string   `xml:"rev,attr"`
}

// Revision returns the current source revision of a package.
func (c *Client) Revision(ctx context.Context, project, pkg string) (string, error) {
	buf := new(bytes.Buffer)
	if err := c.Get(ctx, "/source/"+project+"/"+pkg, buf); err != nil {
		return "", err
	}
	var d directory
	if err := xml.Unmarshal(buf.Bytes(), &d); err != nil {
		return "", &oscerr.HTTPException{Msg: "invalid directory listing of " + project + "/" + pkg + ": " + err.Error()}
	}
	return d.Rev, nil
}

func reason(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

type status struct {
	XMLName xml.Name `xml:"status"`
	Code    string   `xml:"code,attr"`
	Summary string   `xml:"summary"`
}

// statusError returns an APIError for a status document that is not "ok".
func statusError(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("<status")) {
		return nil
	}
	var s status
	if err := xml.Unmarshal(data, &s); err != nil || s.Code == "ok" || s.Code == "" {
		return nil
	}
	msg := s.Summary
	if msg == "" {
		msg = s.Code
	}
	return &oscerr.APIError{Msg: msg}
}

// transportError converts a failed round trip into the client taxonomy.
func transportError(ctx context.Context, u string, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(err, "request")
	}

	cause := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		cause = urlErr.Err
	}

	var (
		verifyErr  *tls.CertificateVerificationError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		opErr      *net.OpError
		dnsErr     *net.DNSError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &authErr),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return &oscerr.SSLVerificationError{Msg: cause.Error(), Err: err}
	case errors.As(err, &recordErr), errors.As(err, &alertErr):
		return &oscerr.SSLError{Msg: cause.Error(), Err: err}
	}
	if line, ok := malformedLine(cause.Error()); ok {
		return &oscerr.BadStatusLine{Line: line}
	}
	switch {
	case errors.As(err, &dnsErr):
		return &oscerr.URLError{URL: u, Reason: dnsErr}
	case errors.As(err, &opErr):
		return &oscerr.URLError{URL: u, Reason: opErr}
	}
	return &oscerr.HTTPException{Msg: cause.Error()}
}

// malformedLine extracts the quoted offending line from net/http errors
// like `malformed HTTP response "garbage"`.
func malformedLine(msg string) (string, bool) {
	idx := strings.Index(msg, "malformed HTTP")
	if idx < 0 {
		return "", false
	}
	rest := msg[idx:]
	q := strings.IndexByte(rest, '"')
	if q < 0 {
		return "", false
	}
	quoted, err := strconv.QuotedPrefix(rest[q:])
	if err != nil {
		return "", false
	}
	line, err := strconv.Unquote(quoted)
	if err != nil {
		return "", false
	}
	return line, true
}
