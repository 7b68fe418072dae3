package httpsig

import "errors"

// Key material errors.
var (
	// ErrBadPassphrase is returned when an encrypted key is loaded without a
	// passphrase or with the wrong one.
	ErrBadPassphrase = errors.New("httpsig: missing or incorrect key passphrase")

	// ErrUnsupportedFormat is returned when key bytes cannot be parsed or
	// hold a key outside the supported key types.
	ErrUnsupportedFormat = errors.New("httpsig: unsupported or malformed key encoding")

	// ErrFingerprintMismatch is returned when the caller-supplied
	// fingerprint does not match the one computed from the key.
	ErrFingerprintMismatch = errors.New("httpsig: key fingerprint mismatch")

	// ErrKeyIO is returned when a key file cannot be read.
	ErrKeyIO = errors.New("httpsig: key file unavailable")

	// ErrUnsupportedKeyType is returned when no algorithm is registered for
	// a key type.
	ErrUnsupportedKeyType = errors.New("httpsig: unsupported key type")
)

// Signing errors.
var (
	// ErrKeyUnavailable is returned when signing with a key that was
	// closed or never loaded.
	ErrKeyUnavailable = errors.New("httpsig: signing key unavailable")

	// ErrCryptoFailure is returned when the signature primitive rejects the
	// operation.
	ErrCryptoFailure = errors.New("httpsig: signature primitive failed")

	// ErrNoAccount is returned when SignerConfig has no account name.
	ErrNoAccount = errors.New("httpsig: account name must not be empty")

	// ErrInvalidCovered is returned when SignerConfig.Headers holds an
	// invalid or duplicate header name.
	ErrInvalidCovered = errors.New("httpsig: invalid covered header list")
)

// Verification errors. Result.Err maps each Reason onto one of these.
var (
	// ErrNoResolver is returned when MiddlewareConfig has no KeyResolver.
	ErrNoResolver = errors.New("httpsig: key resolver must not be nil")

	// ErrMalformedHeader is returned when the Authorization header does not
	// match the Signature scheme grammar.
	ErrMalformedHeader = errors.New("httpsig: malformed authorization header")

	// ErrUnknownKey is returned when the key ID cannot be resolved to a
	// usable public key.
	ErrUnknownKey = errors.New("httpsig: unknown key")

	// ErrBadEncoding is returned when the signature is not valid base64.
	ErrBadEncoding = errors.New("httpsig: invalid signature encoding")

	// ErrAlgorithmMismatch is returned when the algorithm claimed in the
	// header does not belong to the resolved key's type.
	ErrAlgorithmMismatch = errors.New("httpsig: algorithm does not match key type")

	// ErrSignatureInvalid is returned when signature verification fails.
	ErrSignatureInvalid = errors.New("httpsig: signature verification failed")

	// ErrMissingHeader is returned when a header required by the signing
	// string is absent.
	ErrMissingHeader = errors.New("httpsig: required header missing")

	// ErrSignatureExpired is returned when the signed Date is outside the
	// allowed clock skew.
	ErrSignatureExpired = errors.New("httpsig: signature date outside allowed skew")
)

// Content-MD5 errors.
var (
	// ErrDigestMismatch is returned when Content-MD5 verification fails.
	ErrDigestMismatch = errors.New("httpsig: content md5 mismatch")

	// ErrDigestNotFound is returned when Content-MD5 is required but not
	// present.
	ErrDigestNotFound = errors.New("httpsig: content md5 not found")

	// ErrDigestNotSigned is returned when Content-MD5 is required but the
	// signature does not cover it.
	ErrDigestNotSigned = errors.New("httpsig: content md5 not covered by signature")
)
