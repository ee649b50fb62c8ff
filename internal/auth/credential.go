package auth

import (
	"net/http"
	"strings"

	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/pkg/contracts"
)

// DefaultCookieName is the session cookie carrying an identity token.
const DefaultCookieName = "platform_it"

// Credential sources.
const (
	SourceBearer = "bearer"
	SourceCookie = "cookie"
	SourceHeader = "x-api-key"
)

// ExtractCredential reads the caller's credential. Precedence:
//  1. Authorization: Bearer it_... (identity token)
//  2. session cookie, when it holds an identity token
//  3. Authorization: Bearer <key>, then X-API-Key (API key)
//
// A cookie without the token prefix is ignored.
func ExtractCredential(r *http.Request, cookieName string) contracts.Credential {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	bearer := bearerToken(r)
	if bearer != "" && strings.HasPrefix(bearer, identity.TokenPrefix) {
		return contracts.IdentityToken(bearer, SourceBearer)
	}

	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); strings.HasPrefix(v, identity.TokenPrefix) {
			return contracts.IdentityToken(v, SourceCookie)
		}
	}

	return apiKey(r, bearer)
}

// ExtractAPIKey reads only the API key forms (Bearer, then X-API-Key) and
// ignores any session cookie. Token issuance uses it so that a stale
// cookie cannot shadow the key being exchanged.
func ExtractAPIKey(r *http.Request) contracts.Credential {
	bearer := bearerToken(r)
	if strings.HasPrefix(bearer, identity.TokenPrefix) {
		return contracts.IdentityToken(bearer, SourceBearer)
	}
	return apiKey(r, bearer)
}

func apiKey(r *http.Request, bearer string) contracts.Credential {
	if bearer != "" {
		return contracts.APIKey(bearer, SourceBearer)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return contracts.APIKey(key, SourceHeader)
	}
	return contracts.NoCredential
}

// bearerToken returns the trimmed token from a case-insensitive
// "Bearer <token>" Authorization header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const scheme = "bearer"
	if len(h) <= len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return ""
	}
	rest := h[len(scheme):]
	if rest[0] != ' ' && rest[0] != '\t' {
		return ""
	}
	return strings.TrimSpace(rest)
}
