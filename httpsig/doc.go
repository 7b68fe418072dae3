// Package httpsig signs and verifies HTTP requests with the Signature
// Authorization scheme used by Manta-style object storage services.
//
// A signed request carries a Date header and an Authorization header of
// the form:
//
//	Authorization: Signature keyId="/<account>/keys/<fingerprint>",algorithm="rsa-sha256",signature="<base64>"
//
// By default the signing string is exactly the raw Date header value. A
// Signer may instead cover a list of headers, in which case a headers="..."
// parameter is added and each covered header contributes one
// "<name>: <value>" line.
//
// # Keys
//
// Private keys are loaded from disk with LoadKeyFile or from memory with
// ParseKey. RSA, DSA and ECDSA keys are supported, in PEM, OpenSSH or DER
// form, optionally encrypted:
//
//	key, err := httpsig.LoadKeyFile(os.ExpandEnv("$HOME/.ssh/id_rsa"), httpsig.KeyConfig{
//	    Fingerprint: "04:92:7b:23:bc:08:4f:d7:3b:5a:38:9e:4a:17:2e:df",
//	})
//
// The fingerprint is the MD5 of the SSH wire public key, written as
// colon-separated hex octets. Key.Close zeroes the private material.
//
// # Signing Requests
//
//	signer, err := httpsig.NewSigner(key, httpsig.SignerConfig{Account: "alice"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer signer.Close()
//
//	err = signer.SignRequest(req)
//
// # Verifying Requests
//
//	res := httpsig.VerifyRequest(req, httpsig.StaticKeyResolver(map[string]crypto.PublicKey{
//	    "/alice/keys/04:92:7b:23:bc:08:4f:d7:3b:5a:38:9e:4a:17:2e:df": pub,
//	}))
//	if !res.Verified {
//	    log.Printf("rejected: %s", res.Reason)
//	}
//
// # Client Transport
//
// NewTransport wraps an *http.Transport so that every outgoing request is
// signed:
//
//	client := &http.Client{Transport: httpsig.NewTransport(nil, signer)}
//
// # Server Middleware
//
// Middleware verifies incoming requests and rejects unsigned or tampered
// ones with 401 Unauthorized:
//
//	mw, err := httpsig.Middleware(httpsig.MiddlewareConfig{
//	    Verify: httpsig.VerifierConfig{Resolver: resolver, MaxSkew: 5 * time.Minute},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.Handle("/", mw(handler))
package httpsig
