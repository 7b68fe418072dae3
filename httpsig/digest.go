package httpsig

import (
	"bytes"
	"crypto/md5" //nolint:gosec // Content-MD5 is an integrity check, not a security boundary.
	"crypto/subtle"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
)

// HeaderContentMD5 carries the RFC 1864 body digest the storage service
// checks on upload.
const HeaderContentMD5 = "Content-MD5"

// SetContentMD5 reads the request body, sets the Content-MD5 header to the
// base64 MD5 of it, and replaces the body so it can be read again. A
// request without a body gets the digest of the empty string.
func SetContentMD5(r *http.Request) error {
	body, err := readAndRestoreBody(r)
	if err != nil {
		return err
	}

	r.Header.Set(HeaderContentMD5, contentMD5(body))

	return nil
}

// VerifyContentMD5 checks the Content-MD5 header against the request body.
func VerifyContentMD5(r *http.Request) error {
	header := strings.TrimSpace(r.Header.Get(HeaderContentMD5))
	if header == "" {
		return ErrDigestNotFound
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(header), []byte(contentMD5(body))) != 1 {
		return ErrDigestMismatch
	}

	return nil
}

func contentMD5(body []byte) string {
	sum := md5.Sum(body) //nolint:gosec

	return base64.StdEncoding.EncodeToString(sum[:])
}

// readAndRestoreBody reads the entire request body and replaces it with a
// new reader so the body can be consumed again by downstream handlers.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}
