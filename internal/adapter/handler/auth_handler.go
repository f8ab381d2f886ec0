package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var in domain.RegisterInput
	if err := c.Bind(&in); err != nil {
		return fail(c, h.logger, errInvalidPayload)
	}

	session, err := h.auth.Register(c.Request().Context(), in)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, envelope{Success: true, Token: session.Token, User: &session.User})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, h.logger, errInvalidPayload)
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, envelope{Message: "Please provide an email and password"})
	}

	session, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Token: session.Token, User: &session.User})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.auth.Me(c.Request().Context(), claimsFrom(c).Subject)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: user})
}
