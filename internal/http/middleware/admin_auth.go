package middleware

import (
	"vending-dispatch/internal/shared/apperr"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// RoleAdmin is the only role allowed on operator routes.
const RoleAdmin = "admin"

// AdminClaims are the JWT claims issued to back-office operators.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin validates an HS256 bearer token and checks its role claim.
func RequireAdmin(secret string) []echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(AdminClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return &apperr.AppError{Kind: apperr.Unauthorized, Code: "UNAUTHORIZED", PublicMsg: "missing or invalid token", Err: err}
		},
	})

	role := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return &apperr.AppError{Kind: apperr.Unauthorized, Code: "UNAUTHORIZED", PublicMsg: "missing or invalid token"}
			}
			claims, ok := token.Claims.(*AdminClaims)
			if !ok || claims.Role != RoleAdmin {
				return &apperr.AppError{Kind: apperr.Forbidden, Code: "FORBIDDEN", PublicMsg: "admin role required"}
			}
			return next(c)
		}
	}
	return []echo.MiddlewareFunc{verify, role}
}
