// Package jitsi mints the short-lived join tokens the conferencing backend
// verifies at the room door.
package jitsi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret means the signing secret is missing. This is a startup
// failure, not a per-request condition: a deployment that cannot sign join
// tokens must not serve traffic.
var ErrNoSecret = errors.New("jitsi jwt secret is not configured")

// Identity is the user context embedded in the token.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// TokenService signs join tokens with a process-wide HS256 key.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenService creates a token service. Fails if the secret is empty.
func NewTokenService(secret, issuer, audience string) (*TokenService, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// Issue signs a capability token binding the identity, room, moderator flag
// and an absolute expiry of now+ttl. Tokens are single-shot: there is no
// refresh, a reconnect after expiry needs a fresh admission decision.
func (s *TokenService) Issue(id Identity, room string, moderator bool, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"context": map[string]interface{}{
			"user": map[string]interface{}{
				"id":     id.ID,
				"name":   id.Name,
				"email":  id.Email,
				"avatar": id.Avatar,
			},
		},
		"moderator": moderator,
		"aud":       s.audience,
		"iss":       s.issuer,
		"sub":       s.issuer, // by Jitsi convention sub mirrors iss
		"room":      room,
		"exp":       now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// JoinURL assembles the conference URL the client opens: host, room, the
// signed token, and the fixed start-muted fragment.
func JoinURL(host, room, token string) string {
	return host + room + "?jwt=" + token + "#config.startWithAudioMuted=true&config.startWithVideoMuted=true"
}
