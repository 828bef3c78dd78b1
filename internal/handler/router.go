package handler

import (
	"net/http"

	"github.com/SergeiKhy/tinylink/internal/middleware"
	"github.com/SergeiKhy/tinylink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig параметры HTTP слоя
type RouterConfig struct {
	BaseURL        string
	AllowedOrigins []string
}

func NewRouter(
	linkService service.LinkService,
	clickProcessor service.ClickProcessor,
	cfg RouterConfig,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.NewCORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}).Middleware())

	linkHandler := NewLinkHandler(linkService, cfg.BaseURL, logger)

	router.GET("/healthz", HealthCheck(linkService, clickProcessor, logger))

	api := router.Group("/api")
	{
		api.POST("/links", linkHandler.CreateLink)
		api.GET("/links", linkHandler.ListLinks)
		api.GET("/links/:code", linkHandler.GetLink)
		api.DELETE("/links/:code", linkHandler.DeleteLink)
	}

	// Редирект (корневой путь)
	router.GET("/:code", linkHandler.Redirect)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Route not found"})
	})

	return router
}
