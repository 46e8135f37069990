package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/server/internal/service"
)

// abortWithError maps service errors onto HTTP status codes.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, "Asset not found"
	case errors.Is(err, service.ErrInvalidParameter):
		status, msg = http.StatusBadRequest, err.Error()
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}
