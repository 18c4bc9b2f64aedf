// internal/middleware/operator_auth.go
package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// OperatorSecretMiddleware gates the destructive operator routes (override,
// reset, save, load) behind a shared secret header.
func OperatorSecretMiddleware() fiber.Handler {
	expectedSecret := os.Getenv("OPERATOR_SECRET")
	if expectedSecret == "" {
		log.Fatal("❌ OPERATOR_SECRET is not set — operator routes cannot be protected")
	}

	return func(c *fiber.Ctx) error {
		secret := c.Get("X-Operator-Secret")
		if secret == "" {
			log.Printf("🚫 [OPERATOR_AUTH] Missing X-Operator-Secret header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "operator secret missing",
			})
		}

		if secret != expectedSecret {
			log.Printf("❌ [OPERATOR_AUTH] Invalid operator secret for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid operator secret",
			})
		}

		return c.Next()
	}
}
