package httpsig

import (
	"fmt"
	"strings"
)

// AuthScheme is the Authorization scheme name.
const AuthScheme = "Signature"

// Authorization holds the fields of a Signature Authorization header.
type Authorization struct {
	// KeyID names the public key, "/<account>/keys/<fingerprint>".
	KeyID string

	// Algorithm is the wire algorithm token as sent.
	Algorithm Algorithm

	// Signature is the base64-encoded signature.
	Signature string

	// Headers lists covered headers. Empty means the Date value alone was
	// signed.
	Headers []string
}

// String serializes the header value:
//
//	Signature keyId="...",algorithm="...",signature="..."
//
// A headers="..." parameter is inserted before signature when Headers is
// not empty.
func (a Authorization) String() string {
	var b strings.Builder

	b.WriteString(AuthScheme)
	b.WriteString(" keyId=")
	b.WriteString(quote(a.KeyID))
	b.WriteString(",algorithm=")
	b.WriteString(quote(a.Algorithm.String()))

	if len(a.Headers) > 0 {
		b.WriteString(",headers=")
		b.WriteString(quote(strings.Join(a.Headers, " ")))
	}

	b.WriteString(",signature=")
	b.WriteString(quote(a.Signature))

	return b.String()
}

// ParseAuthorization parses a Signature Authorization header value. All
// parameter values must be quoted strings; keyId, algorithm and signature
// are required. Unknown parameters are ignored, duplicates are rejected.
// Errors wrap ErrMalformedHeader.
func ParseAuthorization(value string) (Authorization, error) {
	var a Authorization

	name, params, _ := strings.Cut(strings.TrimSpace(value), " ")
	if !strings.EqualFold(name, AuthScheme) {
		return a, fmt.Errorf("%w: unknown scheme %q", ErrMalformedHeader, name)
	}

	seen := make(map[string]struct{}, 4)

	for _, part := range splitParams(params) {
		key, raw, ok := strings.Cut(part, "=")
		if !ok {
			return a, fmt.Errorf("%w: parameter without value", ErrMalformedHeader)
		}

		key = strings.TrimSpace(key)

		val, ok := unquote(strings.TrimSpace(raw))
		if !ok {
			return a, fmt.Errorf("%w: parameter %q is not a quoted string", ErrMalformedHeader, key)
		}

		if _, dup := seen[key]; dup {
			return a, fmt.Errorf("%w: duplicate parameter %q", ErrMalformedHeader, key)
		}

		seen[key] = struct{}{}

		switch key {
		case "keyId":
			a.KeyID = val
		case "algorithm":
			a.Algorithm = Algorithm(val)
		case "signature":
			a.Signature = val
		case "headers":
			a.Headers = strings.Fields(val)
		}
	}

	switch {
	case a.KeyID == "":
		return a, fmt.Errorf("%w: missing keyId", ErrMalformedHeader)
	case a.Algorithm == "":
		return a, fmt.Errorf("%w: missing algorithm", ErrMalformedHeader)
	case a.Signature == "":
		return a, fmt.Errorf("%w: missing signature", ErrMalformedHeader)
	}

	return a, nil
}

// splitParams cuts the parameter list of a Signature credential at commas
// that sit outside quoted values, so keyId and signature values may hold
// commas. Parts are trimmed and blank parts dropped.
func splitParams(s string) []string {
	var (
		parts   []string
		start   int
		quoted  bool
		escaped bool
	)

	flush := func(end int) {
		if p := strings.TrimSpace(s[start:end]); p != "" {
			parts = append(parts, p)
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			flush(i)
			start = i + 1
		}
	}

	flush(len(s))

	return parts
}

// quote produces a quoted-string, escaping only backslash and double-quote.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\\' || ch == '"' {
			b.WriteByte('\\')
		}

		b.WriteByte(ch)
	}

	b.WriteByte('"')

	return b.String()
}

// unquote reverses quote. It reports false when s is not a well-formed
// quoted-string.
func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}

	s = s[1 : len(s)-1]
	if !strings.ContainsAny(s, `\"`) {
		return s, true
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 == len(s) {
				return "", false
			}

			i++
		case '"':
			return "", false
		}

		b.WriteByte(s[i])
	}

	return b.String(), true
}
