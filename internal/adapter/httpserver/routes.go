package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/auth/login", s.handleLogin)
	s.echo.GET("/auth/callback", s.handleOAuthCallback)
	s.echo.POST("/auth/refresh", s.handleRefresh)
	s.echo.POST("/auth/revoke", s.handleRevoke, s.requireBearer)
	s.echo.POST("/auth/revoke-all", s.handleRevokeAll, s.requireBearer)
	s.echo.POST("/auth/logout", s.handleLogout, s.requireBearer)

	api := s.echo.Group("/api", s.requireBearer, s.ensureClient)
	api.GET("/me", s.handleCurrentUser)
	api.GET("/channels/:slug", s.handleChannelBySlug)
	api.POST("/chat", s.handleSendChat)

	s.echo.GET("/events", s.handleEvents, s.requireBearer)

	s.echo.POST("/webhooks/kick", s.handleWebhook)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
