package middleware

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
)

const (
	DIDHeader       = "X-Concord-DID"
	TimestampHeader = "X-Concord-Timestamp"
	SignatureHeader = "X-Concord-Signature"

	maxSignedBody = 1 << 20
)

type contextKey string

const didContextKey contextKey = "did"

// DIDFromContext returns the authenticated caller, or "" on unsigned routes.
func DIDFromContext(ctx context.Context) string {
	did, _ := ctx.Value(didContextKey).(string)
	return did
}

// WithDID returns a context carrying an authenticated caller. It also
// reports the caller to the request logger, if one is in the chain.
func WithDID(ctx context.Context, did string) context.Context {
	if slot, ok := ctx.Value(callerSlotKey).(*callerSlot); ok {
		slot.did = did
	}
	return context.WithValue(ctx, didContextKey, did)
}

// SigningPayload is the message a caller signs:
// METHOD \n REQUEST_URI \n TIMESTAMP \n hex(sha256(body)).
func SigningPayload(method, requestURI, timestamp string, body []byte) []byte {
	sum := sha256.Sum256(body)
	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(requestURI)
	b.WriteByte('\n')
	b.WriteString(timestamp)
	b.WriteByte('\n')
	b.WriteString(hex.EncodeToString(sum[:]))
	return b.Bytes()
}

// SignRequest sets the auth headers on r. body must be the bytes r will send.
func SignRequest(r *http.Request, did string, key ed25519.PrivateKey, body []byte, now time.Time) {
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := ed25519.Sign(key, SigningPayload(r.Method, r.URL.RequestURI(), ts, body))
	r.Header.Set(DIDHeader, did)
	r.Header.Set(TimestampHeader, ts)
	r.Header.Set(SignatureHeader, base64.StdEncoding.EncodeToString(sig))
}

// SignedRequestAuth verifies the Ed25519 signature against the caller's
// registered key and rejects timestamps further than maxSkew from now.
func SignedRequestAuth(identities domain.IdentityStore, maxSkew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			did := r.Header.Get(DIDHeader)
			ts := r.Header.Get(TimestampHeader)
			sigB64 := r.Header.Get(SignatureHeader)
			if did == "" || ts == "" || sigB64 == "" {
				writeError(w, http.StatusUnauthorized, "missing signature headers")
				return
			}

			unix, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid timestamp")
				return
			}
			skew := now().Sub(time.Unix(unix, 0))
			if skew > maxSkew || skew < -maxSkew {
				writeError(w, http.StatusUnauthorized, "timestamp outside allowed skew")
				return
			}

			sig, err := base64.StdEncoding.DecodeString(sigB64)
			if err != nil || len(sig) != ed25519.SignatureSize {
				writeError(w, http.StatusUnauthorized, "invalid signature encoding")
				return
			}

			var body []byte
			if r.Body != nil {
				body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
				if err != nil {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			identity, err := identities.GetByDID(r.Context(), did)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unknown identity")
				return
			}
			if !ed25519.Verify(identity.PublicKey, SigningPayload(r.Method, r.URL.RequestURI(), ts, body), sig) {
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDID(r.Context(), did)))
		})
	}
}

// RequireOperator limits a route to the configured operator identities.
func RequireOperator(operators []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(operators))
	for _, d := range operators {
		allowed[d] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[DIDFromContext(r.Context())]; !ok {
				writeError(w, http.StatusForbidden, "operator permission required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
