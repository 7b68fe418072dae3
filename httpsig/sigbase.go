package httpsig

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// HeaderDate is the header whose value is signed by default.
const HeaderDate = "Date"

// FormatDate formats t as an RFC 1123 date in GMT, the form carried in the
// Date header and signed by default.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// BuildSigningString derives the bytes that are signed from the request
// headers.
//
// With no covered headers the signing string is exactly the raw Date
// value. With covered headers each one produces a line
// "<lowercase-name>: <value>" and lines are joined with "\n".
//
// A missing or empty header yields ErrMissingHeader; an empty string is
// never returned.
func BuildSigningString(h http.Header, covered []string) ([]byte, error) {
	if len(covered) == 0 {
		date, err := headerValue(h, HeaderDate)
		if err != nil {
			return nil, err
		}

		return []byte(date), nil
	}

	var b strings.Builder

	for i, name := range covered {
		val, err := headerValue(h, name)
		if err != nil {
			return nil, err
		}

		if i > 0 {
			b.WriteByte('\n')
		}

		b.WriteString(strings.ToLower(name))
		b.WriteString(": ")
		b.WriteString(val)
	}

	return []byte(b.String()), nil
}

// headerValue returns the value of a header field. Multiple values for the
// same field are joined with ", " so an injected duplicate changes the
// signing string.
func headerValue(h http.Header, name string) (string, error) {
	values := h.Values(name)

	joined := strings.TrimSpace(strings.Join(values, ", "))
	if joined == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingHeader, strings.ToLower(name))
	}

	return joined, nil
}

// validateCovered checks that every covered entry is a legal header field
// name and appears once.
func validateCovered(covered []string) error {
	seen := make(map[string]struct{}, len(covered))

	for _, name := range covered {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("%w: invalid header name %q", ErrInvalidCovered, name)
		}

		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate header %q", ErrInvalidCovered, name)
		}

		seen[key] = struct{}{}
	}

	return nil
}
