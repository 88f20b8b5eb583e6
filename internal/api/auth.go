package api

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/illegalcall/imaginify/internal/models"
)

const currentUserKey = "currentUser"

// identityMiddleware verifies the HS256 token issued by the identity provider.
func (s *Server) identityMiddleware() fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(s.cfg.Identity.Secret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			s.logger.Warn("Identity token rejected", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or missing identity token",
			})
		},
	})
}

// identityFromClaims reads the profile claims carried by a verified token.
func identityFromClaims(token *jwt.Token) (models.Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, errors.New("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Identity{}, errors.New("token has no subject")
	}

	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	return models.Identity{
		ExternalID: sub,
		Email:      str("email"),
		Username:   str("username"),
		FirstName:  str("first_name"),
		LastName:   str("last_name"),
		Photo:      str("picture"),
	}, nil
}

// resolveUser maps the token subject onto a local account, creating it on
// first sight, and stores it for the handlers.
func (s *Server) resolveUser(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or missing identity token"})
	}

	identity, err := identityFromClaims(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := s.users.ResolveOrCreate(c.UserContext(), identity)
	if err != nil {
		return s.writeError(c, err)
	}

	c.Locals(currentUserKey, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(currentUserKey).(*models.User)
	return user
}
