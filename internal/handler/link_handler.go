package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/SergeiKhy/tinylink/internal/models"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"github.com/SergeiKhy/tinylink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	baseURL string
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, baseURL string, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type CreateLinkRequest struct {
	Target string  `json:"target" binding:"required"`
	Code   *string `json:"code,omitempty"`
}

// LinkResponse представление ссылки для клиента
type LinkResponse struct {
	Code        string     `json:"code"`
	Target      string     `json:"target"`
	ShortURL    string     `json:"shortUrl"`
	Clicks      int64      `json:"clicks"`
	LastClicked *time.Time `json:"lastClicked"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *LinkHandler) toResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		Code:        link.Code,
		Target:      link.Target,
		ShortURL:    h.baseURL + "/" + link.Code,
		Clicks:      link.Clicks,
		LastClicked: link.LastClicked,
		CreatedAt:   link.CreatedAt,
	}
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new short link with an optional custom code
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Невалидное тело запроса", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Body must be JSON with a target field",
		})
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), &models.CreateLinkInput{
		Target: req.Target,
		Code:   req.Code,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Ссылка создана", zap.String("code", link.Code), zap.String("target", link.Target))
	c.JSON(http.StatusCreated, h.toResponse(link))
}

// ListLinks godoc
// @Summary List short links
// @Description List all live links in creation order
// @Tags links
// @Produce json
// @Success 200 {array} LinkResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	response := make([]LinkResponse, 0, len(links))
	for _, link := range links {
		response = append(response, h.toResponse(link))
	}
	c.JSON(http.StatusOK, response)
}

// GetLink godoc
// @Summary Get link statistics
// @Description Get a link with its click count and last click time
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(link))
}

// DeleteLink godoc
// @Summary Delete a short link
// @Description Delete a link by short code, the code stops resolving immediately
// @Tags links
// @Param code path string true "Short code"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	if err := h.service.DeleteLink(c.Request.Context(), code); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Ссылка удалена", zap.String("code", code))
	c.Status(http.StatusNoContent)
}

// Redirect godoc
// @Summary Redirect to target URL
// @Description Resolve a short code, count the click and redirect
// @Tags links
// @Param code path string true "Short code"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	link, err := h.service.ResolveLink(c.Request.Context(), &models.ClickEvent{
		Code:      c.Param("code"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, link.Target)
}

// writeError переводит ошибки сервиса в HTTP ответ
func (h *LinkHandler) writeError(c *gin.Context, err error) {
	status, response := errorResponse(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Ошибка обработки запроса",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("Запрос отклонён",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	c.JSON(status, response)
}

func errorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_url", Message: "Target must be an absolute http or https URL"}
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_code", Message: "Code must be 6-8 alphanumeric characters"}
	case errors.Is(err, service.ErrUnreachable):
		return http.StatusBadRequest, ErrorResponse{Error: "unreachable_target", Message: err.Error()}
	case errors.Is(err, repository.ErrCodeExists):
		return http.StatusConflict, ErrorResponse{Error: "code_exists", Message: "Code already exists"}
	case errors.Is(err, repository.ErrLinkNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Link not found"}
	case errors.Is(err, service.ErrCodeSpaceExhausted),
		errors.Is(err, service.ErrProcessorStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "Service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"}
	}
}
