package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

// UserIDKey holds the approved user id in the request context.
const UserIDKey contextKey = "user_id"

// Gate approves connections carrying a valid bearer token. A gate built
// with an empty secret approves everything.
type Gate struct {
	secret []byte
	log    *slog.Logger
}

// NewGate builds a gate signing and checking tokens with secret.
func NewGate(secret string, log *slog.Logger) *Gate {
	return &Gate{secret: []byte(secret), log: log}
}

// Enabled reports whether tokens are required.
func (g *Gate) Enabled() bool {
	return g != nil && len(g.secret) > 0
}

// Middleware rejects requests without a valid token with 401. Browsers
// cannot set headers on a WebSocket handshake, so the token may also be
// passed as the "token" query parameter.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			g.log.Warn("Connection refused: missing token", "remote", r.RemoteAddr)
			http.Error(w, "authorization token is missing", http.StatusUnauthorized)
			return
		}

		claims, err := g.ValidateToken(tokenString)
		if err != nil {
			g.log.Warn("Connection refused: invalid token", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the user approved by the gate, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
