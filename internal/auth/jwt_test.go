package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/leadpool/internal/models"
)

func generateECKeyPair(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PublicKey) {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func createSignedToken(t *testing.T, privateKey *ecdsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tokenStr, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return tokenStr
}

func generatePublicKeyPEM(t *testing.T, publicKey *ecdsa.PublicKey) string {
	t.Helper()
	publicKeyDER, err := x509.MarshalPKIXPublicKey(publicKey)
	require.NoError(t, err)

	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyDER,
	})
	require.NotNil(t, publicKeyPEM)
	return string(publicKeyPEM)
}

func generatePrivateKeyPEM(t *testing.T, privateKey *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
}

func validClaims(subject string) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Username: "alice",
	}
}

func TestNewVerifierFromPEM(t *testing.T) {
	t.Run("empty public key", func(t *testing.T) {
		v, err := NewVerifierFromPEM("")
		require.Error(t, err)
		require.Nil(t, v)
		require.Equal(t, "JWT public key not provided", err.Error())
	})

	t.Run("invalid PEM", func(t *testing.T) {
		v, err := NewVerifierFromPEM("invalid pem")
		require.Error(t, err)
		require.Nil(t, v)
	})

	t.Run("valid public key PEM", func(t *testing.T) {
		_, publicKey := generateECKeyPair(t)

		v, err := NewVerifierFromPEM(generatePublicKeyPEM(t, publicKey))
		require.NoError(t, err)
		require.NotNil(t, v)
	})
}

func TestVerifier_Verify(t *testing.T) {
	privateKey, publicKey := generateECKeyPair(t)
	otherKey, _ := generateECKeyPair(t)

	v, err := NewVerifierFromPEM(generatePublicKeyPEM(t, publicKey))
	require.NoError(t, err)

	expired := validClaims("1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims("1")
	wrongIssuer.Issuer = "someone-else"

	noExpiry := validClaims("1")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		token   string
		want    models.User
		wantErr bool
	}{
		{name: "valid", token: createSignedToken(t, privateKey, validClaims("42")), want: models.User{ID: 42, Username: "alice"}},
		{name: "wrong key", token: createSignedToken(t, otherKey, validClaims("42")), wantErr: true},
		{name: "expired", token: createSignedToken(t, privateKey, expired), wantErr: true},
		{name: "wrong issuer", token: createSignedToken(t, privateKey, wrongIssuer), wantErr: true},
		{name: "missing expiry", token: createSignedToken(t, privateKey, noExpiry), wantErr: true},
		{name: "non numeric subject", token: createSignedToken(t, privateKey, validClaims("alice")), wantErr: true},
		{name: "zero subject", token: createSignedToken(t, privateKey, validClaims("0")), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := v.Verify(tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, user)
		})
	}
}

func TestVerifier_RejectsHS256(t *testing.T) {
	_, publicKey := generateECKeyPair(t)
	v, err := NewVerifierFromPEM(generatePublicKeyPEM(t, publicKey))
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("1"))
	tokenStr, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Verify(tokenStr)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueToken(t *testing.T) {
	privateKey, publicKey := generateECKeyPair(t)

	tokenStr, err := IssueToken(generatePrivateKeyPEM(t, privateKey), models.User{ID: 7, Username: "bob"}, time.Hour)
	require.NoError(t, err)

	v, err := NewVerifierFromPEM(generatePublicKeyPEM(t, publicKey))
	require.NoError(t, err)

	user, err := v.Verify(tokenStr)
	require.NoError(t, err)
	require.Equal(t, models.User{ID: 7, Username: "bob"}, user)

	_, err = IssueToken("not a key", user, time.Hour)
	require.Error(t, err)
}
