package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/miladnoo/Heray/v1/models"
)

// TokenVerifier resolves an access token to the identity it was issued for.
// Rejected tokens yield an error wrapping ErrInvalidToken; any other error
// means the token could not be checked at all.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.AdminIdentity, error)
}

// JWTVerifier checks HS256 access tokens signed with the provider's JWT secret
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with secret
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses the token, checks signature and expiry, and requires an email claim
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*models.AdminIdentity, error) {
	claims := &models.SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email claim not found or empty in token", ErrInvalidToken)
	}
	return claims.Identity(), nil
}

// ProviderVerifier asks the auth provider who a token belongs to
type ProviderVerifier struct {
	provider *Provider
}

// NewProviderVerifier creates a verifier backed by the provider's user endpoint
func NewProviderVerifier(provider *Provider) *ProviderVerifier {
	return &ProviderVerifier{provider: provider}
}

// Verify resolves the token through the provider
func (v *ProviderVerifier) Verify(ctx context.Context, token string) (*models.AdminIdentity, error) {
	return v.provider.GetUser(ctx, token)
}
