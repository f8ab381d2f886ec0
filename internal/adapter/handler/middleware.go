package handler

import (
	"fmt"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

const claimsKey = "claims"

// Gate authenticates bearer tokens and checks role capabilities per route.
type Gate struct {
	tokens *service.TokenIssuer
}

func NewGate(tokens *service.TokenIssuer) *Gate {
	return &Gate{tokens: tokens}
}

func (g *Gate) Authenticate() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: claimsKey,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return g.tokens.Parse(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, envelope{Message: msgNotAuthorized})
		},
	})
}

// Require rejects callers whose role may not run op.
func (g *Gate) Require(op domain.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := claimsFrom(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, envelope{Message: msgNotAuthorized})
			}
			if err := domain.Authorize(claims.Role, op); err != nil {
				return c.JSON(http.StatusForbidden, envelope{
					Message: fmt.Sprintf("User role '%s' is not authorized to access this route", claims.Role),
				})
			}
			return next(c)
		}
	}
}

func claimsFrom(c echo.Context) *service.Claims {
	claims, _ := c.Get(claimsKey).(*service.Claims)
	return claims
}
