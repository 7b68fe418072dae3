package httpsig

import (
	"crypto"
	"encoding/base64"
	"net/http"
	"slices"
	"strings"
	"time"
)

// SigningContext is the identity a Signer stamps into Authorization headers.
type SigningContext struct {
	AccountName string
	KeyID       string
	Algorithm   Algorithm
}

// KeyID builds the key identifier "/<account>/keys/<fingerprint>".
func KeyID(account, fingerprint string) string {
	return "/" + account + "/keys/" + fingerprint
}

// NewSigningContext derives the signing context of key for account.
func NewSigningContext(account string, key *Key) (SigningContext, error) {
	if account == "" {
		return SigningContext{}, ErrNoAccount
	}

	if key == nil {
		return SigningContext{}, ErrKeyUnavailable
	}

	return SigningContext{
		AccountName: account,
		KeyID:       KeyID(account, key.Fingerprint()),
		Algorithm:   key.Algorithm(),
	}, nil
}

// SignerConfig configures a Signer.
type SignerConfig struct {
	// Account is the storage account name. Required.
	Account string

	// Headers lists the headers covered by the signature. When empty, only
	// the raw Date value is signed.
	Headers []string

	// ContentMD5, when true, makes SignRequest set a Content-MD5 header and
	// cover it together with Date.
	ContentMD5 bool

	// Now returns the time used for generated Date headers. Defaults to
	// time.Now.
	Now func() time.Time
}

// Signer signs outgoing requests with one Key. It is safe for concurrent
// use. Signers are created with NewSigner; a zero Signer has no key and
// every signing call fails with ErrKeyUnavailable.
type Signer struct {
	key        *Key
	ctx        SigningContext
	headers    []string
	contentMD5 bool
	now        func() time.Time
}

// NewSigner returns a Signer for key. The Signer owns key from here on and
// releases it in Close.
func NewSigner(key *Key, cfg SignerConfig) (*Signer, error) {
	ctx, err := NewSigningContext(cfg.Account, key)
	if err != nil {
		return nil, err
	}

	headers := make([]string, 0, len(cfg.Headers)+2)
	for _, h := range cfg.Headers {
		headers = append(headers, strings.ToLower(h))
	}

	if cfg.ContentMD5 {
		for _, h := range []string{"date", "content-md5"} {
			if !slices.Contains(headers, h) {
				headers = append(headers, h)
			}
		}
	}

	if err := validateCovered(headers); err != nil {
		return nil, err
	}

	if len(headers) == 0 {
		headers = nil
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Signer{
		key:        key,
		ctx:        ctx,
		headers:    headers,
		contentMD5: cfg.ContentMD5,
		now:        now,
	}, nil
}

// Context returns the signing context.
func (s *Signer) Context() SigningContext { return s.ctx }

// Key returns the signing key.
func (s *Signer) Key() *Key { return s.key }

// Close releases the private key. Later signing fails with
// ErrKeyUnavailable.
func (s *Signer) Close() error {
	return s.key.Close()
}

// SignRequest adds a Date header when absent and sets the Authorization
// header. On error the request headers are left as they were.
func (s *Signer) SignRequest(r *http.Request) error {
	if r.Header == nil {
		r.Header = make(http.Header)
	}

	addedMD5 := false

	if s.contentMD5 && r.Header.Get(HeaderContentMD5) == "" {
		if err := SetContentMD5(r); err != nil {
			return err
		}

		addedMD5 = true
	}

	if err := s.SignHeader(r.Header); err != nil {
		if addedMD5 {
			r.Header.Del(HeaderContentMD5)
		}

		return err
	}

	return nil
}

// SignHeader signs a header set in place. It behaves like SignRequest
// without Content-MD5 handling.
func (s *Signer) SignHeader(h http.Header) error {
	addedDate := false

	if h.Get(HeaderDate) == "" {
		now := s.now
		if now == nil {
			now = time.Now
		}

		h.Set(HeaderDate, FormatDate(now()))
		addedDate = true
	}

	auth, err := s.Authorize(h)
	if err != nil {
		if addedDate {
			h.Del(HeaderDate)
		}

		return err
	}

	h.Set("Authorization", auth.String())

	return nil
}

// Authorize computes the Authorization for h without modifying it. The Date
// header must already be present.
func (s *Signer) Authorize(h http.Header) (Authorization, error) {
	base, err := BuildSigningString(h, s.headers)
	if err != nil {
		return Authorization{}, err
	}

	sig, err := s.key.sign(base)
	if err != nil {
		return Authorization{}, err
	}

	return Authorization{
		KeyID:     s.ctx.KeyID,
		Algorithm: s.ctx.Algorithm,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Headers:   slices.Clone(s.headers),
	}, nil
}

// VerifyRequest checks a request against the signer's own public key. It is
// the client-side round trip self test.
func (s *Signer) VerifyRequest(r *http.Request) Result {
	return VerifyRequest(r, s.Resolver())
}

// Resolver returns a KeyResolver that knows only this signer's key.
func (s *Signer) Resolver() KeyResolver {
	if s.key == nil {
		return StaticKeyResolver(nil)
	}

	return StaticKeyResolver(map[string]crypto.PublicKey{
		s.ctx.KeyID: s.key.PublicKey(),
	})
}
