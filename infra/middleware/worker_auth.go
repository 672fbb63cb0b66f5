package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"mailsync_worker/pkg/apperr"
	"mailsync_worker/pkg/logger"
)

// LocalCaller is the fiber local holding the token subject.
const LocalCaller = "caller"

var errMissingBearer = errors.New("missing bearer token")

// ServiceAuth validates HS256 bearer tokens signed with the shared worker secret.
// An empty secret disables the check, which is only accepted outside production.
func ServiceAuth(secret string, production bool) fiber.Handler {
	if secret == "" {
		if production {
			return func(c *fiber.Ctx) error {
				return apperr.ConfigError("WORKER_API_SECRET is not configured")
			}
		}
		logger.Warn("WORKER_API_SECRET not set, job trigger is unauthenticated")
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		claims, err := ParseServiceToken(c.Get(fiber.HeaderAuthorization), key)
		if errors.Is(err, errMissingBearer) {
			return apperr.Unauthorized(err.Error())
		}
		if err != nil {
			logger.Warn("job trigger auth failed: %v", err)
			return apperr.InvalidToken(err.Error())
		}

		subject, _ := claims.GetSubject()
		c.Locals(LocalCaller, subject)
		return c.Next()
	}
}

// ParseServiceToken checks the Authorization header value and returns the claims.
func ParseServiceToken(header string, key []byte) (jwt.MapClaims, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return nil, errMissingBearer
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims,
		func(token *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Minute),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
