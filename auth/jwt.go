package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNotConfigured is returned when no identity provider base URL is set.
var ErrNotConfigured = errors.New("auth base URL is not set")

// Validator validates JWTs issued by the identity provider at BaseURL using
// its JWKS endpoint. The JWKS client is created on first use and reused.
type Validator struct {
	BaseURL string

	once    sync.Once
	jwks    keyfunc.Keyfunc
	issuer  string
	initErr error
}

// NewValidator returns a Validator for baseURL, or nil when baseURL is empty.
func NewValidator(baseURL string) *Validator {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil
	}
	return &Validator{BaseURL: baseURL}
}

func (v *Validator) init() {
	u, err := url.Parse(v.BaseURL)
	if err != nil {
		v.initErr = fmt.Errorf("invalid base URL: %w", err)
		return
	}
	v.issuer = u.Scheme + "://" + u.Host
	v.jwks, v.initErr = keyfunc.NewDefault([]string{v.BaseURL + "/.well-known/jwks.json"})
}

// Validate parses tokenString and returns its claims when the signature,
// issuer and expiry are valid.
func (v *Validator) Validate(tokenString string) (jwt.MapClaims, error) {
	if v == nil || v.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	v.once.Do(v.init)
	if v.initErr != nil {
		return nil, v.initErr
	}
	return ParseClaims(tokenString, v.jwks.Keyfunc, v.issuer)
}

// UserID validates tokenString and returns the user id it carries.
func (v *Validator) UserID(tokenString string) (string, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return "", err
	}
	id := UserIDFromClaims(claims)
	if id == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return id, nil
}

// ParseClaims verifies a token with keyFunc and the expected issuer.
func ParseClaims(tokenString string, keyFunc jwt.Keyfunc, issuer string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, keyFunc,
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{"EdDSA", "RS256", "ES256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// UserIDFromClaims returns the user id from claims ("sub" or "id").
func UserIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
