package httpsig

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys are still accepted by the storage service.
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Minimum RSA key size in bits.
const minRSAKeyBits = 2048

// signMessage signs message with priv using the primitive of spec. The
// private key type must match spec.keyType.
func signMessage(spec algorithmSpec, priv crypto.PrivateKey, message []byte) ([]byte, error) {
	digest := spec.digest(message)

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		if spec.keyType != KeyTypeRSA {
			break
		}

		return rsa.SignPKCS1v15(rand.Reader, k, spec.hash, digest)

	case *ecdsa.PrivateKey:
		if spec.keyType != KeyTypeECDSA {
			break
		}

		return ecdsa.SignASN1(rand.Reader, k, digest)

	case *dsa.PrivateKey:
		if spec.keyType != KeyTypeDSA {
			break
		}

		r, s, err := dsa.Sign(rand.Reader, k, truncateDSA(digest, k.Q))
		if err != nil {
			return nil, err
		}

		return marshalDSASignature(r, s)
	}

	return nil, fmt.Errorf("%s cannot sign with %T", spec.alg, priv)
}

// verifyMessage reports whether signature is valid for message under pub.
func verifyMessage(spec algorithmSpec, pub crypto.PublicKey, message, signature []byte) bool {
	digest := spec.digest(message)

	switch k := pub.(type) {
	case *rsa.PublicKey:
		return spec.keyType == KeyTypeRSA &&
			rsa.VerifyPKCS1v15(k, spec.hash, digest, signature) == nil

	case *ecdsa.PublicKey:
		return spec.keyType == KeyTypeECDSA &&
			ecdsa.VerifyASN1(k, digest, signature)

	case *dsa.PublicKey:
		if spec.keyType != KeyTypeDSA {
			return false
		}

		r, s, ok := parseDSASignature(signature)
		if !ok {
			return false
		}

		return dsa.Verify(k, truncateDSA(digest, k.Q), r, s)
	}

	return false
}

// truncateDSA keeps the leftmost bytes of digest that fit the subgroup
// order, per FIPS 186-3 section 4.6.
func truncateDSA(digest []byte, q *big.Int) []byte {
	n := (q.BitLen() + 7) / 8
	if len(digest) > n {
		return digest[:n]
	}

	return digest
}

// marshalDSASignature encodes r and s as an ASN.1 SEQUENCE of two INTEGERs,
// the form produced by SHA1withDSA signers.
func marshalDSASignature(r, s *big.Int) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})

	return b.Bytes()
}

func parseDSASignature(sig []byte) (*big.Int, *big.Int, bool) {
	var inner cryptobyte.String

	r, s := new(big.Int), new(big.Int)
	input := cryptobyte.String(sig)

	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, false
	}

	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, false
	}

	return r, s, true
}
