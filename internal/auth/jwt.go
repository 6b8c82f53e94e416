package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seamarket/fishbid/internal/models"
)

// Identity is the verified user behind a connection or request. It is trusted
// for the lifetime of the connection it was established on.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Role   models.UserRole
}

// Claims is the token payload issued upstream. Subject carries the user id.
type Claims struct {
	Name string          `json:"name,omitempty"`
	Role models.UserRole `json:"role,omitempty"`

	jwt.RegisteredClaims
}

// Verifier validates externally-issued HS256 tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared signing secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates the token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, errors.New("missing token")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, errors.New("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("token subject is not a user id: %w", err)
	}

	role := claims.Role
	if role == "" {
		role = models.UserRoleUser
	}

	return Identity{
		UserID: userID,
		Name:   claims.Name,
		Role:   role,
	}, nil
}

// Sign issues a token for the identity. Production tokens come from the
// upstream credential service; this exists for local runs and tests.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Name: identity.Name,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "fishbid",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
