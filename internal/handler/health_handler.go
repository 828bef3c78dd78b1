package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/SergeiKhy/tinylink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthPingTimeout = 2 * time.Second

type HealthResponse struct {
	Status  string                `json:"status"`
	Service string                `json:"service"`
	Storage string                `json:"storage"`
	Clicks  *service.ChannelStats `json:"clicks,omitempty"`
}

// HealthCheck godoc
// @Summary Health check
// @Description Liveness probe with storage status
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func HealthCheck(linkService service.LinkService, clickProcessor service.ClickProcessor, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		response := HealthResponse{
			Status:  "ok",
			Service: "tinylink",
			Storage: "ok",
		}
		if err := linkService.Ping(ctx); err != nil {
			logger.Warn("Хранилище недоступно", zap.Error(err))
			response.Storage = "unavailable"
		}
		if clickProcessor != nil {
			stats := clickProcessor.Stats()
			response.Clicks = &stats
		}

		c.JSON(http.StatusOK, response)
	}
}
