package oscerr

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-faster/errors"
)

// HTTPError is a non-success status returned by the build service.
type HTTPError struct {
	URL    string
	Code   int
	Reason string
	Header http.Header
	// Body is the buffered response body, nil if it was not captured.
	Body []byte
	// Msg is extra context attached by the caller that issued the request.
	Msg string
}

func (e *HTTPError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = http.StatusText(e.Code)
	}
	return fmt.Sprintf("HTTP Error %d: %s", e.Code, reason)
}

func (e *HTTPError) Kind() Kind { return KindHTTP }

// ReadBody returns the response body. It can be called any number of times.
func (e *HTTPError) ReadBody() (string, error) {
	if e.Body == nil {
		return "", errors.New("response body not captured")
	}
	return string(e.Body), nil
}

// Headers renders the response headers one per line, sorted by name.
func (e *HTTPError) Headers() string {
	keys := make([]string, 0, len(e.Header))
	for k := range e.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range e.Header[k] {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
