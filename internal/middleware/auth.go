package middleware

import (
	"strconv"
	"strings"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"
	"inkwell-backend/internal/models"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const userIdKey = "userId"

// RequireAuth parses the bearer access token and stores the user id in the
// request locals. Requests without a valid token are rejected.
func RequireAuth(cfg *config.Config) fiber.Handler {
	return func(c fiber.Ctx) error {
		id, err := parseBearer(c, cfg)
		if err != nil {
			return err
		}
		c.Locals(userIdKey, id)
		return c.Next()
	}
}

// OptionalAuth resolves the viewer when a valid token is present and leaves
// the request anonymous otherwise.
func OptionalAuth(cfg *config.Config) fiber.Handler {
	return func(c fiber.Ctx) error {
		if id, err := parseBearer(c, cfg); err == nil {
			c.Locals(userIdKey, id)
		}
		return c.Next()
	}
}

// RequireAdmin checks the authenticated user's role. Must run after
// RequireAuth.
func RequireAdmin(db *gorm.DB) fiber.Handler {
	return func(c fiber.Ctx) error {
		var user models.User
		if err := db.First(&user, UserId(c)).Error; err != nil {
			return apperr.NewUnauthorized("Unauthenticated")
		}
		if user.Role != models.RoleAdmin {
			return apperr.NewForbidden("Admin access required")
		}
		return c.Next()
	}
}

// UserId returns the authenticated user id, or zero for anonymous requests.
func UserId(c fiber.Ctx) uint {
	if id, ok := c.Locals(userIdKey).(uint); ok {
		return id
	}
	return 0
}

func parseBearer(c fiber.Ctx, cfg *config.Config) (uint, error) {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, apperr.NewUnauthorized("Unauthenticated")
	}

	token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, apperr.NewUnauthorized("Unauthenticated")
	}

	strId, ok := token.Claims.(jwt.MapClaims)["iss"].(string)
	if !ok {
		return 0, apperr.NewUnauthorized("Invalid token")
	}
	id, err := strconv.ParseUint(strId, 10, 32)
	if err != nil {
		return 0, apperr.NewUnauthorized("Invalid issuer id")
	}
	return uint(id), nil
}
