// Package auth verifies the HS256 tokens that identify pagecraft users.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie consulted when no Authorization header is sent
const SessionCookie = "session"

var (
	// ErrNoCredentials is returned when a request carries no token
	ErrNoCredentials = errors.New("no credentials")
	// ErrInvalidToken is returned for malformed, expired or forged tokens
	ErrInvalidToken = errors.New("invalid token")
)

// User is the authenticated principal
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Provider resolves the current user from request credentials
type Provider struct {
	secret []byte
}

// NewProvider creates a provider verifying tokens signed with secret
func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret)}
}

// Verify validates a token and returns its user
func (p *Provider) Verify(tokenString string) (*User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	user := &User{}
	if user.ID, _ = claims["user_id"].(string); user.ID == "" {
		user.ID, _ = claims.GetSubject()
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	user.Email, _ = claims["email"].(string)
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				user.Roles = append(user.Roles, s)
			}
		}
	}
	return user, nil
}

// CurrentUser reads the bearer token or session cookie of r and verifies it
func (p *Provider) CurrentUser(r *http.Request) (*User, error) {
	token, err := tokenFrom(r)
	if err != nil {
		return nil, err
	}
	return p.Verify(token)
}

func tokenFrom(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
		}
		return token, nil
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", ErrNoCredentials
}
