package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what the external auth collaborator vouches for: a stable
// user id plus display fields used to enrich joins.
type Identity struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Claims holds the JWT claims issued by the auth service.
type Claims struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens. Identity resolution is optional
// for students: an absent or invalid token falls back to the client-supplied
// name, so a flaky auth service never blocks joining a game.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the embedded identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:    claims.UserID,
		Name:      claims.Name,
		Role:      claims.Role,
		AvatarURL: claims.AvatarURL,
	}, nil
}

// Sign issues a token for an identity; used by tests and local tooling.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:    identity.UserID,
		Name:      identity.Name,
		Role:      identity.Role,
		AvatarURL: identity.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
