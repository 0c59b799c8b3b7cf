package middleware

import (
	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"habithop/backend/config"
	"habithop/backend/session"
	"habithop/backend/utils"
)

const sessionKey = "session"

// AuthMiddleware resolves the bearer token into a session.Session stored on
// the request. Revoked tokens are rejected.
func AuthMiddleware(cfg *config.Config, revoker session.Revoker, logger *log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := utils.ExtractSessionFromToken(c, cfg)
		if err != nil {
			return utils.Unauthorized(c, "Unauthorized")
		}

		revoked, err := revoker.IsRevoked(c.UserContext(), s.TokenID)
		if err != nil {
			logger.Error("revocation check failed", "error", err)
			return utils.InternalServerError(c, utils.RetryMessage)
		}
		if revoked {
			return utils.Unauthorized(c, "Session has ended")
		}

		c.Locals(sessionKey, s)
		return c.Next()
	}
}

// CurrentSession returns the session set by AuthMiddleware.
func CurrentSession(c *fiber.Ctx) (session.Session, bool) {
	s, ok := c.Locals(sessionKey).(session.Session)
	return s, ok
}
