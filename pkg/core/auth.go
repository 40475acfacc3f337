package core

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthType selects how HTTP callers authenticate
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

// minTokenLength is the shortest accepted shared secret
const minTokenLength = 16

var weakTokenFragments = []string{
	"password", "secret", "token", "admin", "test", "default",
	"12345", "qwerty", "letmein", "changeme",
}

// SecureCompareString compares in constant time for equal-length inputs
func SecureCompareString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateAuthToken rejects empty, short, or obviously guessable secrets
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidParameter, "authentication token cannot be empty").
			WithGuidance("Provide a token with --http-auth-token")
	}
	if len(token) < minTokenLength {
		return NewError(ErrInvalidParameter, "authentication token is too short").
			WithGuidance("Use a token with at least 16 characters")
	}

	lower := strings.ToLower(token)
	for _, weak := range weakTokenFragments {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidParameter, "authentication token appears to be weak").
				WithGuidance("Use a randomly generated token")
		}
	}
	return nil
}

// AuthResult is the outcome of one authentication check
type AuthResult struct {
	Authorized bool
	Reason     string
}

// Authenticate checks a request against the configured scheme. For basic
// auth the expected secret is "user:password".
func Authenticate(r *http.Request, authType AuthType, expected string) AuthResult {
	switch authType {
	case AuthNone, "":
		return AuthResult{Authorized: true}

	case AuthBearer:
		header := r.Header.Get("Authorization")
		if header == "" {
			return AuthResult{Reason: "missing Authorization header"}
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return AuthResult{Reason: "invalid Authorization header format"}
		}
		if !SecureCompareString(token, expected) {
			return AuthResult{Reason: "invalid bearer token"}
		}
		return AuthResult{Authorized: true}

	case AuthBasic:
		user, pass, ok := r.BasicAuth()
		if !ok || user == "" || pass == "" {
			return AuthResult{Reason: "missing basic auth credentials"}
		}
		if !SecureCompareString(user+":"+pass, expected) {
			return AuthResult{Reason: "invalid basic auth credentials"}
		}
		return AuthResult{Authorized: true}

	default:
		return AuthResult{Reason: "unsupported auth type " + string(authType)}
	}
}
