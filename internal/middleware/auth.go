package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/auth"
	"fhirstore/internal/fhirerr"
)

// principalLocalsKey is the fiber.Ctx Locals key the verified Principal is
// stored under.
const principalLocalsKey = "principal"

// AuthMiddleware extracts and verifies the bearer token on every request,
// storing the resulting Principal in request locals. It only authenticates;
// it never decides whether the principal may perform the requested
// operation.
func AuthMiddleware(verifier auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return fhirerr.New(fhirerr.KindUnauthenticated, "missing-token", "Authorization header is required")
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return fhirerr.New(fhirerr.KindUnauthenticated, "invalid-token", "Authorization header must be a Bearer token")
		}

		principal, err := verifier.VerifyToken(token)
		if err != nil {
			return err
		}

		c.Locals(principalLocalsKey, principal)
		return c.Next()
	}
}

// PrincipalFromContext returns the Principal stored by AuthMiddleware, if any.
func PrincipalFromContext(c *fiber.Ctx) *auth.Principal {
	p, _ := c.Locals(principalLocalsKey).(*auth.Principal)
	return p
}
