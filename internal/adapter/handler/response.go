package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

const (
	msgInvalidPayload  = "Invalid request payload"
	msgInvalidQuantity = "Please provide a valid quantity"
	msgSweetNotFound   = "Sweet not found"
	msgNotAuthorized   = "Not authorized to access this route"
	msgServerError     = "Server Error"
)

var errInvalidPayload = errors.New("invalid request payload")

type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Count   *int         `json:"count,omitempty"`
	Data    any          `json:"data,omitempty"`
	Token   string       `json:"token,omitempty"`
	User    *domain.User `json:"user,omitempty"`
}

func list(sweets []domain.Sweet) envelope {
	if sweets == nil {
		sweets = []domain.Sweet{}
	}
	n := len(sweets)
	return envelope{Success: true, Count: &n, Data: sweets}
}

// statusFor maps an operation error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var vErr *domain.ValidationError
	var stockErr *domain.InsufficientStockError

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, stockErr.Error()
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, msgInvalidQuantity
	case errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest, msgInvalidPayload
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, service.ErrAdminSignupDisabled):
		return http.StatusBadRequest, "Admin registration is disabled"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, msgNotAuthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, msgSweetNotFound
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "Duplicate request"
	default:
		return http.StatusInternalServerError, msgServerError
	}
}

func fail(c echo.Context, logger *zap.Logger, err error) error {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
	}
	return c.JSON(status, envelope{Message: message})
}

// errorHandler renders errors that escape the handlers, such as unknown
// routes or oversized bodies, in the same envelope.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			message, ok := he.Message.(string)
			if !ok {
				message = http.StatusText(he.Code)
			}
			writeErr := c.JSON(he.Code, envelope{Message: message})
			if writeErr != nil {
				logger.Error("failed to write error response", zap.Error(writeErr))
			}
			return
		}

		if writeErr := fail(c, logger, err); writeErr != nil {
			logger.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}
