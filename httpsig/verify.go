package httpsig

import (
	"crypto"
	"encoding/base64"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Reason says why a verification failed.
type Reason int

const (
	// ReasonNone means the signature verified.
	ReasonNone Reason = iota

	// ReasonMalformedHeader means the Authorization header is missing or
	// does not follow the Signature grammar.
	ReasonMalformedHeader

	// ReasonUnknownKey means the key ID did not resolve to a usable key.
	ReasonUnknownKey

	// ReasonMissingHeader means a signed header is absent from the request.
	ReasonMissingHeader

	// ReasonBadEncoding means the signature is not valid base64.
	ReasonBadEncoding

	// ReasonAlgorithmMismatch means the claimed algorithm does not belong to
	// the resolved key's type.
	ReasonAlgorithmMismatch

	// ReasonSignatureInvalid means the cryptographic check failed.
	ReasonSignatureInvalid

	// ReasonExpired means the signed Date is outside the allowed skew.
	ReasonExpired

	// ReasonDigestUnsigned means a body digest is required but Content-MD5
	// is not one of the signed headers.
	ReasonDigestUnsigned

	// ReasonDigestMismatch means Content-MD5 is missing or does not match
	// the body.
	ReasonDigestMismatch
)

var reasonNames = map[Reason]string{
	ReasonNone:              "ok",
	ReasonMalformedHeader:   "malformed_header",
	ReasonUnknownKey:        "unknown_key",
	ReasonMissingHeader:     "missing_header",
	ReasonBadEncoding:       "bad_encoding",
	ReasonAlgorithmMismatch: "algorithm_mismatch",
	ReasonSignatureInvalid:  "signature_invalid",
	ReasonExpired:           "expired",
	ReasonDigestUnsigned:    "digest_unsigned",
	ReasonDigestMismatch:    "digest_mismatch",
}

// String returns a stable snake_case name, suitable for logs and metric
// labels.
func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}

	return "unknown"
}

var reasonErrors = map[Reason]error{
	ReasonMalformedHeader:   ErrMalformedHeader,
	ReasonUnknownKey:        ErrUnknownKey,
	ReasonMissingHeader:     ErrMissingHeader,
	ReasonBadEncoding:       ErrBadEncoding,
	ReasonAlgorithmMismatch: ErrAlgorithmMismatch,
	ReasonSignatureInvalid:  ErrSignatureInvalid,
	ReasonExpired:           ErrSignatureExpired,
	ReasonDigestUnsigned:    ErrDigestNotSigned,
	ReasonDigestMismatch:    ErrDigestMismatch,
}

// Result is the outcome of a verification. KeyID, Algorithm and Headers
// are filled in as soon as the Authorization header parses.
type Result struct {
	Verified  bool
	Reason    Reason
	KeyID     string
	Algorithm Algorithm

	// Headers is the covered header list as sent. Empty means only the
	// Date value was signed.
	Headers []string
}

// Covers reports whether name is one of the signed headers.
func (r Result) Covers(name string) bool {
	if len(r.Headers) == 0 {
		return strings.EqualFold(name, HeaderDate)
	}

	return slices.ContainsFunc(r.Headers, func(h string) bool {
		return strings.EqualFold(h, name)
	})
}

// Err returns nil for a verified result and the sentinel error matching
// Reason otherwise.
func (r Result) Err() error {
	if r.Verified {
		return nil
	}

	if err, ok := reasonErrors[r.Reason]; ok {
		return err
	}

	return ErrSignatureInvalid
}

// KeyResolver maps a key ID to its public key. Returning an error or a nil
// key marks the key as unknown. ssh.PublicKey values are accepted.
type KeyResolver func(keyID string) (crypto.PublicKey, error)

// StaticKeyResolver returns a KeyResolver backed by a fixed map. The map is
// copied.
func StaticKeyResolver(keys map[string]crypto.PublicKey) KeyResolver {
	keys = maps.Clone(keys)

	return func(keyID string) (crypto.PublicKey, error) {
		pub, ok := keys[keyID]
		if !ok {
			return nil, ErrUnknownKey
		}

		return pub, nil
	}
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Resolver looks up public keys by key ID. Required.
	Resolver KeyResolver

	// MaxSkew, when non-zero, rejects requests whose Date differs from the
	// current time by more than MaxSkew.
	MaxSkew time.Duration

	// Now returns the current time for the skew check. Defaults to time.Now.
	Now func() time.Time
}

// Verifier checks Signature Authorization headers on incoming requests. It
// is safe for concurrent use.
type Verifier struct {
	resolve KeyResolver
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier returns a Verifier. It returns ErrNoResolver when
// cfg.Resolver is nil.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Resolver == nil {
		return nil, ErrNoResolver
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Verifier{
		resolve: cfg.Resolver,
		maxSkew: cfg.MaxSkew,
		now:     now,
	}, nil
}

// VerifyRequest verifies r against keys from resolve, without a clock skew
// check. It never panics on untrusted input; a nil resolver yields
// ReasonUnknownKey.
func VerifyRequest(r *http.Request, resolve KeyResolver) Result {
	v := &Verifier{resolve: resolve, now: time.Now}

	return v.Verify(r)
}

// Verify verifies the request signature.
func (v *Verifier) Verify(r *http.Request) Result {
	if r == nil {
		return Result{Reason: ReasonMalformedHeader}
	}

	return v.VerifyHeader(r.Header)
}

// VerifyHeader verifies a header set. The signing string is rebuilt from h
// itself, so what is checked is what arrived.
func (v *Verifier) VerifyHeader(h http.Header) Result {
	var res Result

	fail := func(reason Reason) Result {
		res.Reason = reason
		return res
	}

	auth, err := ParseAuthorization(h.Get("Authorization"))
	if err != nil {
		return fail(ReasonMalformedHeader)
	}

	res.KeyID = auth.KeyID
	res.Algorithm = auth.Algorithm
	res.Headers = auth.Headers

	alg, err := ParseAlgorithm(auth.Algorithm.String())
	if err != nil {
		return fail(ReasonMalformedHeader)
	}

	if err := validateCovered(auth.Headers); err != nil {
		return fail(ReasonMalformedHeader)
	}

	if v.resolve == nil {
		return fail(ReasonUnknownKey)
	}

	pub, err := v.resolve(auth.KeyID)
	if err != nil || pub == nil {
		return fail(ReasonUnknownKey)
	}

	pub = cryptoPublicKey(pub)

	keyType, err := KeyTypeOf(pub)
	if err != nil {
		return fail(ReasonUnknownKey)
	}

	base, err := BuildSigningString(h, auth.Headers)
	if err != nil {
		return fail(ReasonMissingHeader)
	}

	sig, err := base64.StdEncoding.DecodeString(auth.Signature)
	if err != nil {
		return fail(ReasonBadEncoding)
	}

	if alg.KeyType() != keyType {
		return fail(ReasonAlgorithmMismatch)
	}

	spec, _ := specForAlgorithm(alg)
	if !verifyMessage(spec, pub, base, sig) {
		return fail(ReasonSignatureInvalid)
	}

	if v.maxSkew > 0 {
		if reason := v.checkSkew(h); reason != ReasonNone {
			return fail(reason)
		}
	}

	res.Verified = true

	return res
}

func (v *Verifier) checkSkew(h http.Header) Reason {
	date, err := http.ParseTime(h.Get(HeaderDate))
	if err != nil {
		return ReasonMalformedHeader
	}

	skew := v.now().Sub(date)
	if skew < 0 {
		skew = -skew
	}

	if skew > v.maxSkew {
		return ReasonExpired
	}

	return ReasonNone
}
