package httpsig

import (
	"context"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type keyIDKey struct{}

// KeyIDFromContext returns the key ID of a request verified by Middleware.
// Returns an empty string if no ID is present.
func KeyIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(keyIDKey{}).(string); ok {
		return id
	}

	return ""
}

// MiddlewareConfig configures the server-side signature verification
// middleware.
type MiddlewareConfig struct {
	// Verify configures how signatures are verified. Verify.Resolver is
	// required.
	Verify VerifierConfig

	// RequireContentMD5, when true, rejects requests whose signature does
	// not cover Content-MD5, or whose Content-MD5 header is missing or does
	// not match the body.
	RequireContentMD5 bool

	// OnError is called when verification fails. When nil, a 401
	// Unauthorized response with a Signature challenge is sent.
	OnError func(w http.ResponseWriter, r *http.Request, res Result)

	// Logger receives one entry per rejected request. Defaults to a
	// discarding logger.
	Logger logrus.FieldLogger

	// Registerer, when set, receives the mantasig_verifications_total
	// counter.
	Registerer prometheus.Registerer
}

// Middleware returns a middleware that verifies Signature Authorization
// headers on incoming requests.
//
// It returns ErrNoResolver if cfg.Verify.Resolver is nil.
func Middleware(cfg MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	verifier, err := NewVerifier(cfg.Verify)
	if err != nil {
		return nil, err
	}

	onError := cfg.OnError
	if onError == nil {
		onError = defaultOnError
	}

	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	verifications := promauto.With(cfg.Registerer).NewCounterVec(prometheus.CounterOpts{
		Name: "mantasig_verifications_total",
		Help: "Signature verifications by result.",
	}, []string{"result"})

	requireMD5 := cfg.RequireContentMD5

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := verifier.Verify(r)

			if res.Verified && requireMD5 {
				switch {
				case !res.Covers(HeaderContentMD5):
					res.Verified = false
					res.Reason = ReasonDigestUnsigned
				case VerifyContentMD5(r) != nil:
					res.Verified = false
					res.Reason = ReasonDigestMismatch
				}
			}

			verifications.WithLabelValues(res.Reason.String()).Inc()

			if !res.Verified {
				logger.WithFields(logrus.Fields{
					"key_id": res.KeyID,
					"reason": res.Reason.String(),
				}).Warn("rejected request signature")

				onError(w, r, res)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyIDKey{}, res.KeyID)))
		})
	}, nil
}

// defaultOnError writes a 401 Unauthorized response with no body.
func defaultOnError(w http.ResponseWriter, _ *http.Request, _ Result) {
	w.Header().Set("WWW-Authenticate", AuthScheme)
	w.WriteHeader(http.StatusUnauthorized)
}
