package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

// AuthMiddleware accepts the identity provider's signed assertion as a bearer
// token and exposes its user id as the "user_id" local.
type AuthMiddleware struct {
	secretKey string
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{secretKey: cfg.SecretKey}
}

func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(transfer.ErrorResponse{
				Error: "missing bearer token",
				Code:  "unauthorized",
			})
		}

		claims, err := utils.ValidateToken(m.secretKey, token)
		if err != nil || claims.UserID == "" {
			slog.Info("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(transfer.ErrorResponse{
				Error: "invalid or expired token",
				Code:  "unauthorized",
			})
		}

		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}
