package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/services"
	"github.com/example/campusdelivery/internal/utils"
)

const actorContextKey = "currentActor"

// AuthMiddleware validates the bearer token, loads the user it names and
// stores the resulting actor in context. Inactive accounts are refused even
// with a valid token, and the role always comes from the database.
func AuthMiddleware(secret string, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		userID, _, err := utils.ParseToken(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, "id = ?", userID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
			}
			return err
		}
		if !user.IsActive {
			log.Warn().Str("user_id", user.ID.String()).Msg("inactive account presented a valid token")
			return fiber.NewError(fiber.StatusForbidden, "account is disabled")
		}

		c.Locals(actorContextKey, services.Actor{ID: user.ID, Role: user.Role})
		return c.Next()
	}
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := GetActor(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		for _, role := range roles {
			if actor.Role == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient permissions")
	}
}

// GetActor extracts the authenticated actor from context.
func GetActor(c *fiber.Ctx) (services.Actor, bool) {
	actor, ok := c.Locals(actorContextKey).(services.Actor)
	return actor, ok
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	actor, ok := GetActor(c)
	if !ok {
		return uuid.Nil, false
	}
	return actor.ID, true
}
