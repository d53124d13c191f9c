package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Validator checks the bearer token the scheduler signs its deliveries with
type Validator struct {
	token []byte
}

// NewValidator creates a validator. An empty token accepts every request.
func NewValidator(token string) *Validator {
	return &Validator{token: []byte(token)}
}

// Enabled reports whether a token is required
func (v *Validator) Enabled() bool {
	return len(v.token) > 0
}

// ValidateToken checks a presented token in constant time
func (v *Validator) ValidateToken(token string) bool {
	if !v.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), v.token) == 1
}

// Middleware rejects requests without a valid token
func Middleware(validator *Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !validator.Enabled() {
				return next(c)
			}

			// Get token from Authorization header or query parameter
			token := c.Request().Header.Get("Authorization")
			if token != "" {
				token = strings.TrimPrefix(token, "Bearer ")
			} else {
				token = c.QueryParam("token")
			}

			if token == "" || !validator.ValidateToken(token) {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Unauthorized",
				})
			}

			return next(c)
		}
	}
}
