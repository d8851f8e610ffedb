package api

import (
	"errors"
	"net/http"

	"invoice-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps service errors to HTTP responses. Every error response
// has an "error" message; some carry structured details.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		valErr   *service.ValidationError
		refErr   *service.ReferenceError
		stockErr *service.InsufficientStockError
		notFound *service.NotFoundError
		dup      *service.DuplicateError
		conflict *service.ConflictError
	)

	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      valErr.First(),
			"violations": valErr.Violations,
		})
	case errors.As(err, &refErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   refErr.Error(),
			"details": gin.H{"entity": refErr.Entity, "id": refErr.ID},
		})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": stockErr.Error(),
			"details": gin.H{
				"productId": stockErr.ProductID,
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			},
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect username or password"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": dup.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "The request conflicted with a concurrent update, please retry",
			"details": conflict.Op,
		})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
