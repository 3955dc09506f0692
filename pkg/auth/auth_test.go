package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolserver/internal/tracing"
)

const testSecret = "6b6579206f66207465737473206b6579206f66207465737473"

func TestValidator_RoundTrip(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	token, err := v.Sign(Claims{"userId": "u-42", "exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", claims.Subject())
}

func TestValidator_Rejects(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	other, err := NewValidator("abcdef")
	require.NoError(t, err)
	foreign, err := other.Sign(Claims{"userId": "x"})
	require.NoError(t, err)

	expired, err := v.Sign(Claims{"userId": "x", "exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)

	_, err = v.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	for _, token := range []string{"garbage", foreign, expired} {
		_, err = v.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestNewValidator_BadSecret(t *testing.T) {
	_, err := NewValidator("not-hex")
	assert.Error(t, err)

	_, err = NewValidator("")
	assert.Error(t, err)
}

func TestClaims_SubjectFallback(t *testing.T) {
	assert.Equal(t, "s1", Claims{"sub": "s1"}.Subject())
	assert.Equal(t, "7", Claims{"userId": 7}.Subject())
	assert.Empty(t, Claims{}.Subject())
}

func TestMiddleware(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)
	token, err := v.Sign(Claims{"userId": "u-1"})
	require.NoError(t, err)

	var gotSubject string
	var gotClaims bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = tracing.GetSubject(r.Context())
		_, gotClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name        string
		required    bool
		header      string
		wantStatus  int
		wantSubject string
	}{
		{"valid token", true, "Bearer " + token, http.StatusNoContent, "u-1"},
		{"lowercase scheme", false, "bearer " + token, http.StatusNoContent, "u-1"},
		{"missing token permitted", false, "", http.StatusNoContent, ""},
		{"invalid token permitted", false, "Bearer nope", http.StatusNoContent, ""},
		{"missing token required", true, "", http.StatusUnauthorized, ""},
		{"invalid token required", true, "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject, gotClaims = "", false

			req := httptest.NewRequest(http.MethodPost, "/tool-server", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Middleware(v, tt.required)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantSubject, gotSubject)
			assert.Equal(t, tt.wantSubject != "", gotClaims)
		})
	}
}

func TestMiddleware_NilValidator(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	Middleware(nil, true)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
