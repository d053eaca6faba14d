package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrMalformed     = errors.New("invalid authorization header format")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Principal is the caller identity resolved from a token
type Principal struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator tries the OIDC verifier first and falls back to the legacy
// HMAC secret when one is set.
type Authenticator struct {
	verifier  TokenVerifier
	jwtSecret string
}

// NewAuthenticator accepts a nil verifier or an empty secret, not both.
func NewAuthenticator(verifier TokenVerifier, jwtSecret string) *Authenticator {
	return &Authenticator{verifier: verifier, jwtSecret: jwtSecret}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", ErrMalformed
	}
	return parts[1], nil
}

// Authenticate resolves the principal behind an Authorization header.
func (a *Authenticator) Authenticate(header string) (*Principal, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	if a.verifier != nil {
		claims, err := a.verifier.Validate(token)
		if err == nil {
			name := claims.Name
			if name == "" {
				name = claims.PreferredUsername
			}
			return &Principal{UserID: claims.UserID, Email: claims.Email, Name: name}, nil
		}
		if a.jwtSecret == "" {
			return nil, ErrInvalidToken
		}
	}

	if a.jwtSecret != "" {
		claims, err := ValidateLegacyToken(token, a.jwtSecret)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return &Principal{UserID: claims.UserID, Email: claims.Email}, nil
	}

	return nil, ErrNotConfigured
}
