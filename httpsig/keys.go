package httpsig

import (
	"bytes"
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys are still accepted by the storage service.
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"
)

// KeyConfig configures private key loading.
type KeyConfig struct {
	// Passphrase decrypts an encrypted key. Ignored for plain keys.
	Passphrase []byte

	// Fingerprint, when set, must match the fingerprint computed from the
	// loaded key. Both "aa:bb:..." and "MD5:aa:bb:..." forms are accepted.
	Fingerprint string
}

// Key is a loaded private key together with its public half and
// fingerprint. The private material is owned by the Key and released by
// Close. A Key is safe for concurrent use.
type Key struct {
	spec        algorithmSpec
	fingerprint string
	public      crypto.PublicKey

	mu     sync.RWMutex
	secret crypto.PrivateKey
}

// LoadKeyFile reads and parses a private key from path. It is the only
// operation in this package that performs I/O.
func LoadKeyFile(path string, cfg KeyConfig) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyIO, err)
	}
	defer clear(data)

	return ParseKey(data, cfg)
}

// ParseKey parses a private key held in memory. PEM (PKCS#1, PKCS#8, SEC1,
// DSA, OpenSSH, legacy encrypted PEM) and raw DER encodings are accepted.
func ParseKey(data []byte, cfg KeyConfig) (*Key, error) {
	priv, err := parsePrivateKey(data, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	return NewKey(priv, cfg)
}

// NewKey wraps an already parsed RSA, DSA or ECDSA private key. The key type
// is taken from the key itself.
func NewKey(priv crypto.PrivateKey, cfg KeyConfig) (*Key, error) {
	var pub crypto.PublicKey

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		if k == nil || k.N == nil || !hasScalar(k.D) {
			return nil, fmt.Errorf("%w: rsa key has no private exponent", ErrUnsupportedFormat)
		}

		if k.N.BitLen() < minRSAKeyBits {
			return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrUnsupportedFormat, minRSAKeyBits)
		}

		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}

		pub = &k.PublicKey
	case *dsa.PrivateKey:
		if k == nil || !hasScalar(k.X) {
			return nil, fmt.Errorf("%w: dsa key has no private value", ErrUnsupportedFormat)
		}

		pub = &k.PublicKey
	case *ecdsa.PrivateKey:
		if k == nil || !hasScalar(k.D) {
			return nil, fmt.Errorf("%w: ecdsa key has no private scalar", ErrUnsupportedFormat)
		}

		pub = &k.PublicKey
	default:
		return nil, fmt.Errorf("%w: %T keys are not supported", ErrUnsupportedFormat, priv)
	}

	keyType, err := KeyTypeOf(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	spec, ok := specForKeyType(keyType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, keyType)
	}

	fp, err := Fingerprint(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	if cfg.Fingerprint != "" {
		if want := normalizeFingerprint(cfg.Fingerprint); want != fp {
			return nil, fmt.Errorf("%w: expected %s, key has %s", ErrFingerprintMismatch, want, fp)
		}
	}

	return &Key{
		spec:        spec,
		fingerprint: fp,
		public:      pub,
		secret:      priv,
	}, nil
}

func hasScalar(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// Type returns the key type.
func (k *Key) Type() KeyType { return k.spec.keyType }

// Algorithm returns the wire algorithm used for signatures made by k.
func (k *Key) Algorithm() Algorithm { return k.spec.alg }

// Fingerprint returns the key fingerprint.
func (k *Key) Fingerprint() string { return k.fingerprint }

// PublicKey returns the public half of the key.
func (k *Key) PublicKey() crypto.PublicKey { return k.public }

// String identifies the key without exposing private material.
func (k *Key) String() string {
	return fmt.Sprintf("%s key %s", k.spec.keyType, k.fingerprint)
}

// GoString keeps %#v from dumping private key fields.
func (k *Key) GoString() string {
	return "httpsig.Key(" + k.String() + ")"
}

// Close zeroes the private key material. Signing with a closed key returns
// ErrKeyUnavailable. Close is idempotent.
func (k *Key) Close() error {
	if k == nil {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.secret != nil {
		zeroPrivateKey(k.secret)
		k.secret = nil
	}

	return nil
}

// sign produces a signature over message.
func (k *Key) sign(message []byte) ([]byte, error) {
	if k == nil {
		return nil, ErrKeyUnavailable
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.secret == nil {
		return nil, ErrKeyUnavailable
	}

	sig, err := signMessage(k.spec, k.secret, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	return sig, nil
}

func parsePrivateKey(data, passphrase []byte) (crypto.PrivateKey, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrUnsupportedFormat)
	}

	if block, _ := pem.Decode(data); block == nil {
		return parseDERPrivateKey(data)
	}

	priv, err := ssh.ParseRawPrivateKey(data)

	var missing *ssh.PassphraseMissingError

	switch {
	case err == nil:
		return priv, nil
	case !errors.As(err, &missing):
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	case len(passphrase) == 0:
		return nil, ErrBadPassphrase
	}

	// A wrong passphrase is reported either as x509.IncorrectPasswordError
	// or as undecodable plaintext; both mean the same thing here.
	priv, err = ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
	if err != nil {
		return nil, ErrBadPassphrase
	}

	return priv, nil
}

func parseDERPrivateKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}

	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}

	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}

	if k, err := ssh.ParseDSAPrivateKey(der); err == nil {
		return k, nil
	}

	return nil, fmt.Errorf("%w: not a PEM or DER private key", ErrUnsupportedFormat)
}

func zeroPrivateKey(priv crypto.PrivateKey) {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		zeroInt(k.D)
		for _, p := range k.Primes {
			zeroInt(p)
		}

		zeroInt(k.Precomputed.Dp)
		zeroInt(k.Precomputed.Dq)
		zeroInt(k.Precomputed.Qinv)
	case *dsa.PrivateKey:
		zeroInt(k.X)
	case *ecdsa.PrivateKey:
		zeroInt(k.D)
	}
}

func zeroInt(n *big.Int) {
	if n == nil {
		return
	}

	clear(n.Bits())
	n.SetInt64(0)
}
