package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified claim attached to a connection, checked exactly
// once at connect time.
type Identity struct {
	Subject string
	Name    string
	Role    string
}

// Verifier validates an opaque bearer credential.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) Verifier {
	return &jwtVerifier{secret: []byte(secret)}
}

func (v *jwtVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	name := c.Name
	if name == "" {
		name = c.Subject
	}

	return &Identity{
		Subject: c.Subject,
		Name:    name,
		Role:    c.Role,
	}, nil
}
