package httpsig

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

var (
	testRSAKey = sync.OnceValue(func() *rsa.PrivateKey {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}

		return k
	})

	testECDSAKey = sync.OnceValue(func() *ecdsa.PrivateKey {
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			panic(err)
		}

		return k
	})

	testDSAKey = sync.OnceValue(func() *dsa.PrivateKey {
		k := new(dsa.PrivateKey)
		if err := dsa.GenerateParameters(&k.Parameters, rand.Reader, dsa.L1024N160); err != nil {
			panic(err)
		}

		if err := dsa.GenerateKey(k, rand.Reader); err != nil {
			panic(err)
		}

		return k
	})
)

// pkcs1PEM returns the traditional "RSA PRIVATE KEY" encoding of k.
func pkcs1PEM(k *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)})
}

func dsaDER(t *testing.T, k *dsa.PrivateKey) []byte {
	t.Helper()

	der, err := asn1.Marshal(struct {
		Version       int
		P, Q, G, Y, X *big.Int
	}{0, k.P, k.Q, k.G, k.Y, k.X})
	require.NoError(t, err)

	return der
}

// newTestKey wraps a copy of priv so that closing the result does not zero
// the shared fixture.
func newTestKey(t *testing.T, priv crypto.PrivateKey) *Key {
	t.Helper()

	var data []byte

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		data = pkcs1PEM(k)
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(k)
		require.NoError(t, err)
		data = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	case *dsa.PrivateKey:
		data = pem.EncodeToMemory(&pem.Block{Type: "DSA PRIVATE KEY", Bytes: dsaDER(t, k)})
	default:
		t.Fatalf("unexpected key type %T", priv)
	}

	key, err := ParseKey(data, KeyConfig{})
	require.NoError(t, err)

	return key
}

func TestParseKey(t *testing.T) {
	rsaKey := testRSAKey()
	ecKey := testECDSAKey()
	dsaKey := testDSAKey()

	pkcs8, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	require.NoError(t, err)

	sec1, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)

	opensshRSA, err := ssh.MarshalPrivateKey(rsaKey, "")
	require.NoError(t, err)

	opensshEC, err := ssh.MarshalPrivateKey(ecKey, "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    []byte
		keyType KeyType
		pub     crypto.PublicKey
	}{
		{"rsa pkcs1 pem", pkcs1PEM(rsaKey), KeyTypeRSA, &rsaKey.PublicKey},
		{"rsa pkcs8 pem", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), KeyTypeRSA, &rsaKey.PublicKey},
		{"rsa openssh", pem.EncodeToMemory(opensshRSA), KeyTypeRSA, &rsaKey.PublicKey},
		{"rsa pkcs1 der", x509.MarshalPKCS1PrivateKey(rsaKey), KeyTypeRSA, &rsaKey.PublicKey},
		{"rsa pkcs8 der", pkcs8, KeyTypeRSA, &rsaKey.PublicKey},
		{"ecdsa sec1 pem", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: sec1}), KeyTypeECDSA, &ecKey.PublicKey},
		{"ecdsa sec1 der", sec1, KeyTypeECDSA, &ecKey.PublicKey},
		{"ecdsa openssh", pem.EncodeToMemory(opensshEC), KeyTypeECDSA, &ecKey.PublicKey},
		{"dsa pem", pem.EncodeToMemory(&pem.Block{Type: "DSA PRIVATE KEY", Bytes: dsaDER(t, dsaKey)}), KeyTypeDSA, &dsaKey.PublicKey},
		{"dsa der", dsaDER(t, dsaKey), KeyTypeDSA, &dsaKey.PublicKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.data, KeyConfig{})
			require.NoError(t, err)
			defer key.Close()

			want, err := Fingerprint(tt.pub)
			require.NoError(t, err)

			assert.Equal(t, tt.keyType, key.Type())
			assert.Equal(t, want, key.Fingerprint())

			alg, err := SelectAlgorithm(tt.keyType)
			require.NoError(t, err)
			assert.Equal(t, alg, key.Algorithm())
		})
	}

	t.Run("key type comes from the key", func(t *testing.T) {
		// PKCS#8 carries no key type in its PEM label.
		block := &pem.Block{Type: "PRIVATE KEY", Bytes: mustPKCS8(t, ecKey)}

		key, err := ParseKey(pem.EncodeToMemory(block), KeyConfig{})
		require.NoError(t, err)
		assert.Equal(t, KeyTypeECDSA, key.Type())
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ParseKey(nil, KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)

		_, err = ParseKey([]byte("  \n"), KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseKey([]byte("not a key"), KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("corrupt pem body", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{0x30, 0x03, 0x02, 0x01}})

		_, err := ParseKey(data, KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("ed25519 is not supported", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		block := &pem.Block{Type: "PRIVATE KEY", Bytes: mustPKCS8(t, priv)}

		_, err = ParseKey(pem.EncodeToMemory(block), KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("short rsa key", func(t *testing.T) {
		small, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)

		_, err = ParseKey(pkcs1PEM(small), KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func mustPKCS8(t *testing.T, priv any) []byte {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	return der
}

func TestParseKeyPassphrase(t *testing.T) {
	rsaKey := testRSAKey()
	pass := []byte("correct horse")

	//nolint:staticcheck // legacy encrypted PEM is still produced by older ssh-keygen releases.
	legacy, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey), pass, x509.PEMCipherAES256)
	require.NoError(t, err)

	openssh, err := ssh.MarshalPrivateKeyWithPassphrase(rsaKey, "", pass)
	require.NoError(t, err)

	want, err := Fingerprint(&rsaKey.PublicKey)
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"legacy pem": pem.EncodeToMemory(legacy),
		"openssh":    pem.EncodeToMemory(openssh),
	} {
		t.Run(name, func(t *testing.T) {
			t.Run("correct passphrase", func(t *testing.T) {
				key, err := ParseKey(data, KeyConfig{Passphrase: pass})
				require.NoError(t, err)
				assert.Equal(t, want, key.Fingerprint())
			})

			t.Run("missing passphrase", func(t *testing.T) {
				_, err := ParseKey(data, KeyConfig{})
				assert.ErrorIs(t, err, ErrBadPassphrase)
			})

			t.Run("wrong passphrase", func(t *testing.T) {
				_, err := ParseKey(data, KeyConfig{Passphrase: []byte("battery staple")})
				assert.ErrorIs(t, err, ErrBadPassphrase)
			})
		})
	}

	t.Run("passphrase ignored for plain key", func(t *testing.T) {
		key, err := ParseKey(pkcs1PEM(rsaKey), KeyConfig{Passphrase: pass})
		require.NoError(t, err)
		assert.Equal(t, want, key.Fingerprint())
	})

	t.Run("error does not leak passphrase", func(t *testing.T) {
		_, err := ParseKey(pem.EncodeToMemory(legacy), KeyConfig{Passphrase: []byte("s3cret-value")})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "s3cret-value")
	})
}

func TestKeyFingerprintCheck(t *testing.T) {
	rsaKey := testRSAKey()

	fp, err := Fingerprint(&rsaKey.PublicKey)
	require.NoError(t, err)

	t.Run("matching fingerprint", func(t *testing.T) {
		key, err := ParseKey(pkcs1PEM(rsaKey), KeyConfig{Fingerprint: fp})
		require.NoError(t, err)
		assert.Equal(t, fp, key.Fingerprint())
	})

	t.Run("ssh-keygen md5 form", func(t *testing.T) {
		_, err := ParseKey(pkcs1PEM(rsaKey), KeyConfig{Fingerprint: "MD5:" + fp})
		require.NoError(t, err)
	})

	t.Run("mismatch", func(t *testing.T) {
		other, err := Fingerprint(&testECDSAKey().PublicKey)
		require.NoError(t, err)

		_, err = ParseKey(pkcs1PEM(rsaKey), KeyConfig{Fingerprint: other})
		assert.ErrorIs(t, err, ErrFingerprintMismatch)
		assert.Contains(t, err.Error(), other)
		assert.Contains(t, err.Error(), fp)
	})
}

func TestLoadKeyFile(t *testing.T) {
	rsaKey := testRSAKey()
	data := pkcs1PEM(rsaKey)

	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Run("file and memory are equivalent", func(t *testing.T) {
		fromFile, err := LoadKeyFile(path, KeyConfig{})
		require.NoError(t, err)

		fromMemory, err := ParseKey(data, KeyConfig{})
		require.NoError(t, err)

		assert.Equal(t, fromMemory.Fingerprint(), fromFile.Fingerprint())
		assert.Equal(t, fromMemory.Type(), fromFile.Type())

		fileSigner, err := NewSigner(fromFile, SignerConfig{Account: "alice"})
		require.NoError(t, err)

		memSigner, err := NewSigner(fromMemory, SignerConfig{Account: "alice"})
		require.NoError(t, err)

		assert.Equal(t, fileSigner.Context(), memSigner.Context())

		// A signature from either instance verifies with the other's
		// resolver.
		req := newSignedRequest(t, fileSigner)
		assert.True(t, memSigner.VerifyRequest(req).Verified)

		req = newSignedRequest(t, memSigner)
		assert.True(t, fileSigner.VerifyRequest(req).Verified)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKeyFile(filepath.Join(t.TempDir(), "nope"), KeyConfig{})
		assert.ErrorIs(t, err, ErrKeyIO)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("fingerprint mismatch from file", func(t *testing.T) {
		_, err := LoadKeyFile(path, KeyConfig{Fingerprint: "00:11:22:33:44:55:66:77:88:99:aa:bb:cc:dd:ee:ff"})
		assert.ErrorIs(t, err, ErrFingerprintMismatch)
	})
}

func TestNewKey(t *testing.T) {
	t.Run("unsupported private key", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		_, err = NewKey(priv, KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("nil", func(t *testing.T) {
		_, err := NewKey(nil, KeyConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing private half", func(t *testing.T) {
		rsaKey := testRSAKey()
		ecKey := testECDSAKey()
		dsaKey := testDSAKey()

		tests := []struct {
			name string
			priv crypto.PrivateKey
		}{
			{"typed nil rsa", (*rsa.PrivateKey)(nil)},
			{"typed nil dsa", (*dsa.PrivateKey)(nil)},
			{"typed nil ecdsa", (*ecdsa.PrivateKey)(nil)},
			{"empty rsa", &rsa.PrivateKey{}},
			{"rsa public only", &rsa.PrivateKey{PublicKey: rsaKey.PublicKey}},
			{"dsa public only", &dsa.PrivateKey{PublicKey: dsaKey.PublicKey}},
			{"ecdsa public only", &ecdsa.PrivateKey{PublicKey: ecKey.PublicKey}},
			{"rsa zero exponent", &rsa.PrivateKey{PublicKey: rsaKey.PublicKey, D: new(big.Int), Primes: rsaKey.Primes}},
			{"rsa inconsistent", &rsa.PrivateKey{PublicKey: rsaKey.PublicKey, D: big.NewInt(3), Primes: rsaKey.Primes}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var (
					key *Key
					err error
				)

				require.NotPanics(t, func() { key, err = NewKey(tt.priv, KeyConfig{}) })
				assert.Nil(t, key)
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
			})
		}
	})
}

func TestKeyClose(t *testing.T) {
	key := newTestKey(t, testRSAKey())

	secret := key.secret.(*rsa.PrivateKey)

	require.NoError(t, key.Close())
	assert.Nil(t, key.secret)
	assert.Zero(t, secret.D.Sign())

	_, err := key.sign([]byte("message"))
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	// Public half stays usable for verification.
	assert.NotNil(t, key.PublicKey())
	assert.NoError(t, key.Close())
}

func TestKeyString(t *testing.T) {
	key := newTestKey(t, testRSAKey())

	assert.Equal(t, "rsa key "+key.Fingerprint(), key.String())
	assert.Equal(t, "httpsig.Key(rsa key "+key.Fingerprint()+")", key.GoString())
}

func TestNilKeySign(t *testing.T) {
	var key *Key

	_, err := key.sign([]byte("message"))
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}
