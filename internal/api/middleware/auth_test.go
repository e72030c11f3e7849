package middleware

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityMap map[string]ed25519.PublicKey

func (m identityMap) Create(_ context.Context, id *domain.Identity) error {
	m[id.DID] = id.PublicKey
	return nil
}

func (m identityMap) GetByDID(_ context.Context, did string) (*domain.Identity, error) {
	key, ok := m[did]
	if !ok {
		return nil, errors.New("not found")
	}
	return &domain.Identity{DID: did, PublicKey: key}, nil
}

func newKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

// echoDID reports the authenticated caller and the body it received.
func echoDID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Caller", DIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func TestSignedRequestAuth(t *testing.T) {
	pub, priv := newKey(t)
	_, otherPriv := newKey(t)
	identities := identityMap{"did:alice": pub}
	now := time.Unix(1_750_000_000, 0)
	clock := func() time.Time { return now }

	handler := SignedRequestAuth(identities, 5*time.Minute, clock)(echoDID())

	body := []byte(`{"vote":"agree"}`)

	tests := []struct {
		name       string
		prepare    func() *http.Request
		wantStatus int
	}{
		{
			name: "valid signature",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/v1/votes/commitments?x=1", bytes.NewReader(body))
				SignRequest(r, "did:alice", priv, body, now)
				return r
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "missing headers",
			prepare: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/v1/stake/did:alice", nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown identity",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/stake/did:bob", nil)
				SignRequest(r, "did:bob", priv, nil, now)
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong key",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/stake/did:alice", nil)
				SignRequest(r, "did:alice", otherPriv, nil, now)
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "tampered body",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/v1/votes/commitments", bytes.NewReader([]byte(`{"vote":"disagree"}`)))
				SignRequest(r, "did:alice", priv, body, now)
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "tampered query",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/trust/edges?source=did:alice", nil)
				SignRequest(r, "did:alice", priv, nil, now)
				r.URL.RawQuery = "source=did:mallory"
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "stale timestamp",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/stake/did:alice", nil)
				SignRequest(r, "did:alice", priv, nil, now.Add(-10*time.Minute))
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "future timestamp",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/stake/did:alice", nil)
				SignRequest(r, "did:alice", priv, nil, now.Add(10*time.Minute))
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed timestamp",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/stake/did:alice", nil)
				SignRequest(r, "did:alice", priv, nil, now)
				r.Header.Set(TimestampHeader, "yesterday")
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed signature",
			prepare: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/v1/stake/did:alice", nil)
				SignRequest(r, "did:alice", priv, nil, now)
				r.Header.Set(SignatureHeader, base64.StdEncoding.EncodeToString([]byte("short")))
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tt.prepare())
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestSignedRequestAuth_PassesCallerAndBody(t *testing.T) {
	pub, priv := newKey(t)
	now := time.Now()
	handler := SignedRequestAuth(identityMap{"did:alice": pub}, time.Minute, nil)(echoDID())

	body := []byte(`{"amount":5}`)
	r := httptest.NewRequest(http.MethodPost, "/v1/stake/deposit", bytes.NewReader(body))
	SignRequest(r, "did:alice", priv, body, now)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "did:alice", rec.Header().Get("X-Caller"))
	assert.Equal(t, string(body), rec.Body.String())
	assert.Equal(t, strconv.FormatInt(now.Unix(), 10), r.Header.Get(TimestampHeader))
}

func TestSigningPayload(t *testing.T) {
	a := SigningPayload("POST", "/v1/x", "1", []byte("body"))
	b := SigningPayload("POST", "/v1/x", "1", []byte("body!"))
	c := SigningPayload("GET", "/v1/x", "1", []byte("body"))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, bytes.HasPrefix(a, []byte("POST\n/v1/x\n1\n")))
}

func TestRequireOperator(t *testing.T) {
	handler := RequireOperator([]string{"did:op"})(echoDID())

	tests := []struct {
		name       string
		did        string
		wantStatus int
	}{
		{"operator", "did:op", http.StatusOK},
		{"other identity", "did:alice", http.StatusForbidden},
		{"unauthenticated", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/votes/expire", nil)
			if tt.did != "" {
				r = r.WithContext(WithDID(r.Context(), tt.did))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
