package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
)

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler with the given logger.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteJSON writes a successful envelope with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, message string, data any) {
	c.JSON(status, dto.OK(message, data))
}

// WriteError writes a failed envelope with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, dto.Fail(err))
}

// WriteInternalError logs err and answers with a generic 500.
func (b *Base) WriteInternalError(c *gin.Context, msg string, err error) {
	b.logger.Error(msg, "path", c.FullPath(), "error", err)
	b.WriteError(c, http.StatusInternalServerError, dto.InternalError())
}

// ParseIntQuery parses an integer query parameter with a default value.
func ParseIntQuery(c *gin.Context, name string, defaultVal int) int {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
