package custody

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
)

// TokenVerifier validates bearer tokens minted by the custody provider's
// auth system. Tokens are ES256 JWTs whose subject is the provider user ID.
type TokenVerifier struct {
	key   *ecdsa.PublicKey
	appID string
}

// NewTokenVerifier parses the provider's PEM-encoded ES256 public key. When
// appID is non-empty, tokens must carry it in their audience.
func NewTokenVerifier(pemKey, appID string) (*TokenVerifier, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return &TokenVerifier{key: key, appID: appID}, nil
}

// Verify checks the token signature and claims and returns the user ID.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"ES256"}),
		jwt.WithExpirationRequired(),
	}
	if v.appID != "" {
		opts = append(opts, jwt.WithAudience(v.appID))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return "", svcerrors.InvalidToken(err)
	}
	if !token.Valid {
		return "", svcerrors.InvalidToken(errors.New("token is not valid"))
	}
	if claims.Subject == "" {
		return "", svcerrors.InvalidToken(errors.New("token has no subject"))
	}
	return claims.Subject, nil
}
