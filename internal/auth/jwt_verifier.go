package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fhirstore/internal/fhirerr"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier implements Verifier using a remote JWKS endpoint.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
}

// NewJWTVerifier creates a new JWT verifier that fetches public keys from the
// issuer's JWKS endpoint. The JWKS keys are cached and automatically
// refreshed based on HTTP cache headers.
func NewJWTVerifier(jwksURL string, logger *slog.Logger) (Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx := context.Background()
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &JWKSVerifier{
		jwks:   jwks,
		logger: logger,
	}, nil
}

// VerifyToken validates a JWT token and maps its claims into a Principal.
// Authorization (what the principal may do) is out of scope here; this only
// establishes who is making the request.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		v.logger.Debug("token parse failed", "error", err.Error())
		return nil, fhirerr.New(fhirerr.KindUnauthenticated, "invalid-token", "token could not be parsed or verified")
	}

	if !token.Valid {
		return nil, fhirerr.New(fhirerr.KindUnauthenticated, "invalid-token", "token is not valid")
	}

	// Prevent algorithm confusion attacks - allow only RS256 or ES256.
	switch token.Method.Alg() {
	case "RS256", "ES256":
	default:
		v.logger.Warn("token uses unexpected algorithm", "algorithm", token.Method.Alg())
		return nil, fhirerr.New(fhirerr.KindUnauthenticated, "invalid-token", "unexpected signing algorithm")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fhirerr.New(fhirerr.KindUnauthenticated, "invalid-token", "token missing subject claim")
	}
	iss, _ := claims["iss"].(string)

	return &Principal{
		Subject:  sub,
		Issuer:   iss,
		Metadata: claims,
	}, nil
}

// Close releases resources held by the JWT verifier. In keyfunc v3, the
// library manages its own resources based on HTTP cache headers, so this is
// a no-op kept for graceful-shutdown symmetry with other components.
func (v *JWKSVerifier) Close() error {
	v.logger.Info("JWT verifier closed")
	return nil
}
