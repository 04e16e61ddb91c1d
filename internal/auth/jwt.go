package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity claims carried by a cardstash token.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates ES256-signed identity tokens.
type Verifier struct {
	publicKey *ecdsa.PublicKey
}

// NewVerifierFromPEM creates a verifier from a PEM-encoded ECDSA public
// key.
func NewVerifierFromPEM(publicKeyPEM string) (*Verifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, err
	}

	return &Verifier{publicKey: publicKey}, nil
}

// Verify parses and validates a token, returning the verified identity.
func (v *Verifier) Verify(tokenStr string) (PrincipalInfo, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, errors.New("invalid signing method")
		}
		return v.publicKey, nil
	})
	if err != nil {
		return PrincipalInfo{}, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return PrincipalInfo{}, errors.New("token invalid")
	}

	if claims.Subject == "" {
		return PrincipalInfo{}, errors.New("token missing subject")
	}
	if claims.Email == "" {
		return PrincipalInfo{}, errors.New("token missing email")
	}

	return PrincipalInfo{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}
