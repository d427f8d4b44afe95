package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// AuthConfig enables HMAC bearer tokens. An empty secret disables checks.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
}

// Authenticator validates bearer tokens on mutating RPC methods.
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
	now    func() time.Time
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		issuer: strings.TrimSpace(cfg.Issuer),
		skew:   skew,
		now:    time.Now,
	}
}

// Enabled reports whether a secret is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Authorize checks the Authorization header and returns the token subject.
func (a *Authenticator) Authorize(r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return "", ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(a.skew),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
