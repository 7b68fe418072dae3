package httpsig

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys are still accepted by the storage service.
	"crypto/ecdsa"
	"crypto/rsa"
	_ "crypto/sha1" // registers crypto.SHA1
	_ "crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyType identifies the asymmetric key family of a signing key.
type KeyType int

const (
	// KeyTypeRSA is an RSA key.
	KeyTypeRSA KeyType = iota + 1

	// KeyTypeDSA is a DSA key.
	KeyTypeDSA

	// KeyTypeECDSA is an elliptic-curve key.
	KeyTypeECDSA
)

// String returns the lowercase name of the key type.
func (k KeyType) String() string {
	switch k {
	case KeyTypeRSA:
		return "rsa"
	case KeyTypeDSA:
		return "dsa"
	case KeyTypeECDSA:
		return "ecdsa"
	default:
		return fmt.Sprintf("keytype(%d)", int(k))
	}
}

// Algorithm is the algorithm token carried in the Authorization header.
type Algorithm string

const (
	// AlgorithmRSASHA256 is RSASSA-PKCS1-v1_5 over SHA-256.
	AlgorithmRSASHA256 Algorithm = "rsa-sha256"

	// AlgorithmDSASHA1 is DSA over SHA-1.
	AlgorithmDSASHA1 Algorithm = "dsa-sha1"

	// AlgorithmECDSASHA256 is ECDSA over SHA-256.
	AlgorithmECDSASHA256 Algorithm = "ecdsa-sha256"
)

// String returns the wire token.
func (a Algorithm) String() string {
	return string(a)
}

// algorithmSpec binds a key type to its wire token and the underlying
// digest-then-sign primitive.
type algorithmSpec struct {
	keyType   KeyType
	alg       Algorithm
	hash      crypto.Hash
	primitive string
}

// algorithms is the single source for both the key type and wire token
// vocabularies. Adding a key type means adding a row here.
var algorithms = []algorithmSpec{
	{keyType: KeyTypeRSA, alg: AlgorithmRSASHA256, hash: crypto.SHA256, primitive: "SHA256withRSA"},
	{keyType: KeyTypeDSA, alg: AlgorithmDSASHA1, hash: crypto.SHA1, primitive: "SHA1withDSA"},
	{keyType: KeyTypeECDSA, alg: AlgorithmECDSASHA256, hash: crypto.SHA256, primitive: "SHA256withECDSA"},
}

func specForKeyType(k KeyType) (algorithmSpec, bool) {
	for _, s := range algorithms {
		if s.keyType == k {
			return s, true
		}
	}

	return algorithmSpec{}, false
}

func specForAlgorithm(a Algorithm) (algorithmSpec, bool) {
	for _, s := range algorithms {
		if s.alg == a {
			return s, true
		}
	}

	return algorithmSpec{}, false
}

// SelectAlgorithm returns the wire algorithm used to sign with keys of the
// given type.
func SelectAlgorithm(k KeyType) (Algorithm, error) {
	s, ok := specForKeyType(k)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKeyType, k)
	}

	return s.alg, nil
}

// ParseAlgorithm parses a wire token. Tokens are matched case-insensitively.
func ParseAlgorithm(token string) (Algorithm, error) {
	s, ok := specForAlgorithm(Algorithm(strings.ToLower(strings.TrimSpace(token))))
	if !ok {
		return "", fmt.Errorf("%w: unknown algorithm %q", ErrMalformedHeader, token)
	}

	return s.alg, nil
}

// KeyType returns the key type the algorithm signs with. It returns zero
// for unknown algorithms.
func (a Algorithm) KeyType() KeyType {
	s, _ := specForAlgorithm(a)
	return s.keyType
}

// Primitive returns the name of the digest-then-sign composition behind the
// wire token, e.g. "SHA256withRSA".
func (a Algorithm) Primitive() string {
	s, _ := specForAlgorithm(a)
	return s.primitive
}

// KeyTypeOf reports the key type of a public key. Both standard library keys
// and ssh.PublicKey values are accepted; nil or incomplete keys are not.
func KeyTypeOf(pub crypto.PublicKey) (KeyType, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k == nil || k.N == nil {
			break
		}

		return KeyTypeRSA, nil
	case *dsa.PublicKey:
		if k == nil || k.P == nil || k.Q == nil || k.G == nil || k.Y == nil {
			break
		}

		return KeyTypeDSA, nil
	case *ecdsa.PublicKey:
		if k == nil || k.Curve == nil || k.X == nil || k.Y == nil {
			break
		}

		return KeyTypeECDSA, nil
	case ssh.CryptoPublicKey:
		return KeyTypeOf(k.CryptoPublicKey())
	}

	return 0, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
}

// cryptoPublicKey unwraps ssh.PublicKey values into their standard library
// form.
func cryptoPublicKey(pub crypto.PublicKey) crypto.PublicKey {
	if k, ok := pub.(ssh.CryptoPublicKey); ok {
		return k.CryptoPublicKey()
	}

	return pub
}

func (s algorithmSpec) digest(message []byte) []byte {
	h := s.hash.New()
	h.Write(message)

	return h.Sum(nil)
}
