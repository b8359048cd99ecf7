package auth

import (
	"net/http"
	"strings"
)

const AccessTokenParam = "access_token"

// TokenFromRequest reads the bearer token from the Authorization header, or
// from the access_token query parameter since browsers cannot set headers on
// a websocket handshake.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get(AccessTokenParam)
}
