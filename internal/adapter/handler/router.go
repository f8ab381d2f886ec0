package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
	"github.com/rl1809/sweet-shop/internal/port"
)

const healthCheckTimeout = 2 * time.Second

type RouterConfig struct {
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Dependencies struct {
	Inventory *service.InventoryService
	Auth      *service.AuthService
	Tokens    *service.TokenIssuer
	Store     port.Pinger
	Logger    *zap.Logger
}

// NewRouter builds the echo instance serving the REST API.
func NewRouter(cfg RouterConfig, deps Dependencies) *echo.Echo {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			HeaderIdempotencyKey,
		},
	}))
	if cfg.RateLimitRPS > 0 {
		e.Use(middleware.RateLimiterWithConfig(rateLimiter(cfg)))
	}
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, envelope{Success: true, Message: "Sweet Shop API is running!"})
	})
	e.GET("/health", healthCheck(deps.Store))

	gate := NewGate(deps.Tokens)
	api := e.Group("/api")

	auth := NewAuthHandler(deps.Auth, logger)
	authGroup := api.Group("/auth")
	authGroup.POST("/register", auth.Register)
	authGroup.POST("/login", auth.Login)
	authGroup.GET("/me", auth.Me, gate.Authenticate())

	sweets := NewSweetHandler(deps.Inventory, logger)
	sweetGroup := api.Group("/sweets", gate.Authenticate())
	sweetGroup.GET("", sweets.List, gate.Require(domain.OpListSweets))
	sweetGroup.GET("/search", sweets.Search, gate.Require(domain.OpSearchSweets))
	sweetGroup.GET("/:id", sweets.Get, gate.Require(domain.OpGetSweet))
	sweetGroup.POST("", sweets.Create, gate.Require(domain.OpCreateSweet))
	sweetGroup.PUT("/:id", sweets.Update, gate.Require(domain.OpUpdateSweet))
	sweetGroup.DELETE("/:id", sweets.Delete, gate.Require(domain.OpDeleteSweet))
	sweetGroup.POST("/:id/purchase", sweets.Purchase, gate.Require(domain.OpPurchaseSweet))
	sweetGroup.POST("/:id/restock", sweets.Restock, gate.Require(domain.OpRestockSweet))

	return e
}

func rateLimiter(cfg RouterConfig) middleware.RateLimiterConfig {
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = int(cfg.RateLimitRPS) + 1
	}

	deny := func(c echo.Context) error {
		return c.JSON(http.StatusTooManyRequests, envelope{Message: "Too many requests, please try again later"})
	}

	return middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitRPS),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return deny(c)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return deny(c)
		},
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func healthCheck(store port.Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
