package httpsig

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Fingerprint returns the MD5 fingerprint of the SSH wire encoding of pub,
// as lowercase colon-separated hex octets ("aa:bb:..."). This is the form
// the storage service uses to register keys, and the last path segment of
// a key ID.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	sshPub, err := sshPublicKey(pub)
	if err != nil {
		return "", err
	}

	return ssh.FingerprintLegacyMD5(sshPub), nil
}

func sshPublicKey(pub crypto.PublicKey) (ssh.PublicKey, error) {
	if k, ok := pub.(ssh.PublicKey); ok {
		return k, nil
	}

	k, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}

	return k, nil
}

// normalizeFingerprint accepts fingerprints as printed by ssh-keygen -l -E md5
// ("MD5:aa:bb:...") and in upper case.
func normalizeFingerprint(fp string) string {
	fp = strings.ToLower(strings.TrimSpace(fp))
	return strings.TrimPrefix(fp, "md5:")
}

// ParsePublicKey parses a public key from an authorized_keys line or from a
// PEM "PUBLIC KEY" (PKIX) or "RSA PUBLIC KEY" (PKCS#1) block.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	data = bytes.TrimSpace(data)

	var (
		pub crypto.PublicKey
		err error
	)

	if block, _ := pem.Decode(data); block != nil {
		switch block.Type {
		case "PUBLIC KEY":
			pub, err = x509.ParsePKIXPublicKey(block.Bytes)
		case "RSA PUBLIC KEY":
			pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
		default:
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrUnsupportedFormat, block.Type)
		}
	} else {
		var sshPub ssh.PublicKey
		sshPub, _, _, _, err = ssh.ParseAuthorizedKey(data)
		if err == nil {
			pub = cryptoPublicKey(sshPub)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	if _, err := KeyTypeOf(pub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return pub, nil
}
