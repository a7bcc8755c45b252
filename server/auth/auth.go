// Package auth provides the access-token middleware for the HTTP API.
package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	// ContextUserIDKey is the echo context key holding the
	// authenticated user id.
	ContextUserIDKey = "user_id"

	issuer = "driftchat"
)

// AccessTokenDuration is how long issued tokens stay valid.
const AccessTokenDuration = 7 * 24 * time.Hour

// GenerateAccessToken issues a signed token for a user.
func GenerateAccessToken(userID int32, secret string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(int64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenDuration)),
	})
	return token.SignedString([]byte(secret))
}

// ParseAccessToken validates a token and returns the user id.
func ParseAccessToken(tokenString, secret string) (int32, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid subject: %w", err)
	}
	return int32(userID), nil
}

// Middleware authenticates requests with a Bearer access token and
// stores the user id on the echo context.
func Middleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			userID, err := ParseAccessToken(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			c.Set(ContextUserIDKey, userID)
			return next(c)
		}
	}
}

// UserIDFromContext returns the authenticated user id, or 0 when the
// request is unauthenticated.
func UserIDFromContext(c echo.Context) int32 {
	if v, ok := c.Get(ContextUserIDKey).(int32); ok {
		return v
	}
	return 0
}
