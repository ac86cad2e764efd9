package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfeidau/leadpool/internal/models"
)

// Issuer is the iss claim on tokens issued for the pool.
const Issuer = "leadpool"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims identifying a salesperson. Subject holds the numeric user id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Verifier validates ES256 tokens signed by the session issuer and resolves the user.
type Verifier struct {
	publicKey *ecdsa.PublicKey
}

// NewVerifierFromPEM creates a verifier from a PEM encoded ECDSA public key.
func NewVerifierFromPEM(publicKeyPEM string) (*Verifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}

	return &Verifier{publicKey: publicKey}, nil
}

// Verify checks the token signature, expiry and issuer and returns the user it names.
func (v *Verifier) Verify(tokenString string) (models.User, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, errors.New("invalid signing method")
		}
		return v.publicKey, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return models.User{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return models.User{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return models.User{ID: userID, Username: claims.Username}, nil
}
