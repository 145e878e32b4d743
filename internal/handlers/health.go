package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"starterkit/api/internal/singleton"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Clients     map[string]string `json:"clients"`
	Environment string            `json:"environment"`
}

// Health reports the shared clients without building the ones nobody asked
// for yet; those show as idle.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Clients:     map[string]string{},
		Environment: h.cfg.Environment,
	}

	for name, err := range h.registry.Status(ctx) {
		switch {
		case err == nil:
			resp.Clients[name] = "ok"
		case errors.Is(err, singleton.ErrNotBuilt):
			resp.Clients[name] = "idle"
		default:
			resp.Clients[name] = "error"
			resp.Status = "degraded"
			h.log.Error().Err(err).Str("client", name).Msg("health check failed")
		}
	}

	c.JSON(http.StatusOK, resp)
}
