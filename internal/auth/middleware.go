package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is package-private so no other package can read or shadow the
// subject stored in a request context.
type contextKey string

const subjectKey contextKey = "subject"

// TokenCookie is read when a request has no Authorization header, so a
// browser page served from the same origin can authenticate too.
const TokenCookie = "token"

// RequireBearer rejects any request without a valid token with 401 and
// stores the token subject in the context for the rest.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireBearer(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := extractSubject(r, tokens)
			if err != nil {
				logger.DebugContext(r.Context(), "rejected request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="snippet-organizer"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid API token required"}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated token subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok && subject != ""
}

// extractSubject prefers the Authorization header and falls back to the
// token cookie.
func extractSubject(r *http.Request, tokens *TokenService) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", errMalformedHeader
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(TokenCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
