package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clipreview-backend/internal/http/response"
)

// ReadyChecker reports whether the service can accept work.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

type HealthHandler struct {
	ready   ReadyChecker
	timeout time.Duration
}

func NewHealthHandler(ready ReadyChecker) *HealthHandler {
	return &HealthHandler{ready: ready, timeout: 10 * time.Second}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready == nil {
		c.String(http.StatusOK, "ready")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.ready.Ready(ctx); err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "not_ready", err)
		return
	}
	c.String(http.StatusOK, "ready")
}
