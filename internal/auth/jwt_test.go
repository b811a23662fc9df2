package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	return ts
}

// =========================================================================
// TOKEN SERVICE
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	assert.Error(t, err)

	_, err = NewTokenService("this-is-16-chars")
	assert.NoError(t, err)
}

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("local", time.Hour)
	require.NoError(t, err)

	// header.payload.signature
	assert.Equal(t, 2, strings.Count(token, "."))
}

func TestGenerate_EmptySubject(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.Generate("", time.Hour)
	assert.Error(t, err)
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("desk-ui", time.Hour)
	require.NoError(t, err)

	got, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "desk-ui", got)
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	good, err := ts.Generate("local", time.Hour)
	require.NoError(t, err)
	expired, err := ts.Generate("local", -time.Second)
	require.NoError(t, err)

	other, err := NewTokenService("wrong-secret-32-chars-long!!!!!!")
	require.NoError(t, err)
	foreign, err := other.Generate("local", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "tampered signature", token: good[:len(good)-3] + "xxx"},
		{name: "different secret", token: foreign},
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestValidate_UsesClock(t *testing.T) {
	ts := newTestTokenService(t)
	token, err := ts.Generate("local", time.Hour)
	require.NoError(t, err)

	ts.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = ts.Validate(token)
	assert.ErrorContains(t, err, "expired")
}

// =========================================================================
// MIDDLEWARE
// =========================================================================

func TestRequireBearer(t *testing.T) {
	ts := newTestTokenService(t)
	token, err := ts.Generate("local", time.Hour)
	require.NoError(t, err)

	var seen string
	h := RequireBearer(ts, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = SubjectFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{name: "no credentials", setup: func(*http.Request) {}, status: http.StatusUnauthorized},
		{name: "bearer header", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}, status: http.StatusNoContent},
		{name: "lowercase scheme", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "bearer "+token)
		}, status: http.StatusNoContent},
		{name: "basic scheme", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+token)
		}, status: http.StatusUnauthorized},
		{name: "cookie", setup: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		}, status: http.StatusNoContent},
		{name: "bad header wins over good cookie", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		}, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/snippets", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "local", seen)
			} else {
				assert.Empty(t, seen)
				assert.Contains(t, rec.Body.String(), "unauthorized")
			}
		})
	}
}

func TestSubjectFromContext_Anonymous(t *testing.T) {
	_, ok := SubjectFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
