package handler

import (
	"net/http"

	"github.com/dkuznetsov/link-registry/internal/middleware"
	"github.com/dkuznetsov/link-registry/internal/preview"
	"github.com/dkuznetsov/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter собирает все HTTP фронтенды поверх одного фасада реестра:
// токен-аутентифицированный REST, дашборд и путь редиректа.
func NewRouter(
	registry service.Registry,
	recorder service.AccessRecorder,
	previews preview.Service,
	rateLimiter *middleware.RateLimiter,
	apiAuth gin.HandlerFunc,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.Default()

	// Middleware для логгирования
	if logger != nil {
		router.Use(func(c *gin.Context) {
			logger.Info("Request",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			c.Next()
		})
	}

	// Rate limiting для всех запросов
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(registry, recorder, previews, baseURL, logger)

	// REST API v.1 — личность из API токена
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		if apiAuth == nil {
			// Без токенов REST деградирует до сессионной личности
			apiAuth = middleware.SessionIdentity()
		}
		protected := v1.Group("")
		protected.Use(apiAuth)

		protected.POST("/links", linkHandler.CreateLink)
		protected.GET("/links", linkHandler.ListLinks)
		protected.DELETE("/links/:code", linkHandler.DeleteLink)
		protected.PUT("/links/:code", linkHandler.RenameLink)
		protected.GET("/links/:code/stats", linkHandler.GetStats)
		protected.GET("/preview", linkHandler.PreviewLink)
	}

	// Дашборд — личность от сессионного коллаборатора
	dashboard := router.Group("/dashboard")
	dashboard.Use(middleware.SessionIdentity())
	{
		dashboard.GET("/urls", linkHandler.ListLinks)
		dashboard.POST("/urls", linkHandler.CreateLink)
		dashboard.DELETE("/urls/:code", linkHandler.DeleteLink)
		dashboard.PUT("/urls/:code", linkHandler.RenameLink)
		dashboard.GET("/urls/:code/stats", linkHandler.GetStats)
		dashboard.GET("/preview", linkHandler.PreviewLink)
	}

	// Метрики (без аутентификации)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Редирект (корневой путь) — без аутентификации
	router.GET("/:code", linkHandler.Redirect)

	return router
}

// HealthCheck простой health endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "link-registry",
	})
}
