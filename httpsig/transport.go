package httpsig

import (
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID correlates a request with storage service logs.
const HeaderRequestID = "X-Request-Id"

// Transport is an http.RoundTripper that signs outgoing requests.
//
// Use NewTransport to create a Transport with a configured *http.Transport
// for proxy, TLS, and timeout settings.
type Transport struct {
	base   http.RoundTripper
	signer *Signer
}

// NewTransport creates a signing Transport that delegates to base after
// signing each request. When base is nil, a clone of http.DefaultTransport
// is used.
//
//	base := &http.Transport{
//	    Proxy:           http.ProxyFromEnvironment,
//	    TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS13},
//	}
//	client := &http.Client{Transport: httpsig.NewTransport(base, signer)}
func NewTransport(base *http.Transport, signer *Signer) *Transport {
	var rt http.RoundTripper
	if base != nil {
		rt = base
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Transport{
		base:   rt,
		signer: signer,
	}
}

// RoundTrip stamps a request ID when absent, signs the request and then
// delegates to the base transport. The caller's request is cloned before
// any header is touched. A signing failure aborts the round trip, so an
// unsigned request is never sent.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}

		clone.Body = body
	}

	if clone.Header.Get(HeaderRequestID) == "" {
		clone.Header.Set(HeaderRequestID, uuid.New().String())
	}

	if err := t.signer.SignRequest(clone); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}

		return nil, err
	}

	return t.base.RoundTrip(clone)
}
