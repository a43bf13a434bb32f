package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ErrUnauthorized is returned by Check for a missing or wrong token.
var ErrUnauthorized = errors.New("unauthorized")

// TokenFunc returns the currently configured token, "" for none.
type TokenFunc func() string

// Static returns a TokenFunc that always returns token.
func Static(token string) TokenFunc {
	return func() string { return token }
}

// Check compares an Authorization header value against token.
// An empty token accepts everything.
func Check(header, token string) error {
	if token == "" {
		return nil
	}
	want := "Bearer " + token
	if subtle.ConstantTimeCompare([]byte(header), []byte(want)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// RequireBearer rejects requests whose Authorization header does not match
// the token returned by token. The token is read per request so a reloaded
// config applies immediately.
func RequireBearer(token TokenFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Check(r.Header.Get("Authorization"), token()); err != nil {
				slog.Warn("auth: request rejected",
					"path", r.URL.Path, "remote", r.RemoteAddr, "err", err)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="fishnet-exporter"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"}) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
