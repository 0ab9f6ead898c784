package serverutils

import (
	"strings"

	"church-portal-be/internal/identity"

	"github.com/gofiber/fiber/v2"
)

const identityKey = "identity"

// BearerToken reads the credential from the Authorization header or, for browser websocket
// clients, the token query parameter.
func BearerToken(ctx *fiber.Ctx) string {
	if authHeader := ctx.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ctx.Query("token")
}

// JwtMiddleware rejects requests without a valid bearer token and stores the verified
// identity in locals.
func JwtMiddleware(verifier identity.Verifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		ident, err := verifier.Verify(ctx.UserContext(), tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		SetIdentity(ctx, ident)
		return ctx.Next()
	}
}

func SetIdentity(ctx *fiber.Ctx, ident *identity.Identity) {
	ctx.Locals(identityKey, ident)
	ctx.Locals("user_id", ident.SubjectID)
}

// IdentityFrom returns the identity stored by JwtMiddleware, or nil.
func IdentityFrom(ctx *fiber.Ctx) *identity.Identity {
	ident, _ := ctx.Locals(identityKey).(*identity.Identity)
	return ident
}
