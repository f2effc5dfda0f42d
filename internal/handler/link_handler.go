package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dkuznetsov/link-registry/internal/middleware"
	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/preview"
	"github.com/dkuznetsov/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LinkHandler обслуживает и REST, и дашборд: личность вызывающего кладёт
// в контекст middleware соответствующей группы, бизнес-правила одни и те же.
type LinkHandler struct {
	registry service.Registry
	recorder service.AccessRecorder
	previews preview.Service
	baseURL  string
	logger   *zap.Logger
}

func NewLinkHandler(
	registry service.Registry,
	recorder service.AccessRecorder,
	previews preview.Service,
	baseURL string,
	logger *zap.Logger,
) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		registry: registry,
		recorder: recorder,
		previews: previews,
		baseURL:  baseURL,
		logger:   logger,
	}
}

type CreateLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

type RenameLinkRequest struct {
	NewCode string `json:"new_code" binding:"required"`
}

// LinkEntry представление ссылки для транспорта
type LinkEntry struct {
	ID          string                 `json:"id"`
	ShortCode   string                 `json:"short_code"`
	ShortURL    string                 `json:"short_url"`
	OriginalURL string                 `json:"original_url"`
	Owner       *models.Owner          `json:"owner,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Statistics  *models.AggregateStats `json:"statistics,omitempty"`
	Preview     json.RawMessage        `json:"preview,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateLink создаёт короткую ссылку от имени вызывающего
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "no_identity",
			Message: "Caller identity is missing",
		})
		return
	}

	link, err := h.registry.Shorten(c.Request.Context(), req.URL, caller)
	if err != nil {
		h.respondError(c, err, "Failed to create link")
		return
	}

	shortensTotal.Inc()

	entry := h.toEntry(c, link, true)
	c.JSON(http.StatusCreated, entry)
}

// ListLinks возвращает ссылки, видимые вызывающему, со статистикой и превью
func (h *LinkHandler) ListLinks(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "no_identity",
			Message: "Caller identity is missing",
		})
		return
	}

	links, err := h.registry.List(c.Request.Context(), caller)
	if err != nil {
		h.respondError(c, err, "Failed to list links")
		return
	}

	entries := make([]LinkEntry, 0, len(links))
	for _, link := range links {
		entries = append(entries, *h.toEntry(c, link, true))
	}

	c.JSON(http.StatusOK, entries)
}

// Redirect разрешает код и отправляет клиента на назначение.
// Запись доступа асинхронная и не задерживает редирект.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	link, err := h.registry.Resolve(c.Request.Context(), code)
	if err != nil {
		redirectsTotal.WithLabelValues("miss").Inc()
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found",
			})
			return
		}
		h.respondError(c, err, "Failed to resolve link")
		return
	}

	if err := h.recorder.Record(c.Request.Context(), &models.AccessMeta{
		ShortCode:     code,
		UserAgent:     c.Request.UserAgent(),
		IP:            c.ClientIP(),
		RequestedHost: c.Request.Host,
	}); err != nil {
		// Потеря статистики не должна ломать редирект
		h.logger.Warn("Failed to record access", zap.String("code", code), zap.Error(err))
	}

	redirectsTotal.WithLabelValues("hit").Inc()
	c.Redirect(http.StatusTemporaryRedirect, link.OriginalURL)
}

// DeleteLink удаляет ссылку, если вызывающий — владелец или админ
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "no_identity",
			Message: "Caller identity is missing",
		})
		return
	}

	if err := h.registry.Remove(c.Request.Context(), code, caller); err != nil {
		h.respondError(c, err, "Failed to delete link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}

// RenameLink меняет короткий код, сохраняя историю
func (h *LinkHandler) RenameLink(c *gin.Context) {
	code := c.Param("code")

	var req RenameLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "no_identity",
			Message: "Caller identity is missing",
		})
		return
	}

	if err := h.registry.Rename(c.Request.Context(), code, req.NewCode, caller); err != nil {
		h.respondError(c, err, "Failed to rename link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link renamed successfully", "short_code": req.NewCode})
}

// GetStats возвращает сводку доступов по коду
func (h *LinkHandler) GetStats(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.registry.Stats(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err, "Failed to get stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// PreviewLink проксирует превью назначения. Сбой коллаборатора — пустой ответ.
func (h *LinkHandler) PreviewLink(c *gin.Context) {
	originalURL := c.Query("url")
	if originalURL == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_url",
			Message: "Query parameter url is required",
		})
		return
	}

	payload := h.previews.Fetch(c.Request.Context(), originalURL)
	if payload == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

// toEntry собирает транспортное представление ссылки
func (h *LinkHandler) toEntry(c *gin.Context, link *models.Link, withExtras bool) *LinkEntry {
	entry := &LinkEntry{
		ID:          link.ID.String(),
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		Owner:       link.Owner,
		CreatedAt:   link.CreatedAt,
	}

	if withExtras {
		entry.Statistics = service.Aggregate(link, h.logger)
		if h.previews != nil {
			entry.Preview = h.previews.Fetch(c.Request.Context(), link.OriginalURL)
		}
	}

	return entry
}

// respondError переводит таксономию ядра в HTTP статусы.
// Forbidden и NotFound различаются сознательно.
func (h *LinkHandler) respondError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_input",
			Message: "Required field is missing or empty",
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: "Short code already taken",
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You are not allowed to modify this link",
		})
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "storage_unavailable",
			Message: "Storage is temporarily unavailable, retry later",
		})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
	}
}
