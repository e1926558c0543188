// Package verifier checks signed claim tokens and hands the engine the
// verified issuer and payload.
package verifier

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"endorser/internal/claims/models"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/requestcontext"
)

// Signing algorithms accepted on claim tokens.
var validMethods = []string{
	jwt.SigningMethodEdDSA.Alg(),
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodHS256.Alg(),
}

// KeyResolver finds the verification key for an issuer. The key type must
// match alg: ed25519.PublicKey for EdDSA, *ecdsa.PublicKey for ES256 and
// []byte for HS256.
type KeyResolver interface {
	ResolveKey(ctx context.Context, issuer, alg string) (any, error)
}

// JWTVerifier verifies compact JWS tokens whose "iss" names the issuer DID.
type JWTVerifier struct {
	keys KeyResolver
}

func New(keys KeyResolver) (*JWTVerifier, error) {
	if keys == nil {
		return nil, errors.New("key resolver is required")
	}
	return &JWTVerifier{keys: keys}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*models.VerifiedToken, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods(validMethods),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
		jwt.WithIssuedAt(),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.keys.ResolveKey(ctx, iss, t.Method.Alg())
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	iss, _ := claims.GetIssuer()
	out := &models.VerifiedToken{
		Issuer:  iss,
		Token:   token,
		Payload: map[string]any(claims),
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.UTC()
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.UTC()
		out.ExpiresAt = &t
	}
	return out, nil
}
