package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quricedev/alice-ai/internal/service"
	"github.com/quricedev/alice-ai/internal/upstream"
)

const providerName = "Alice AI"

// Completer is the upstream dependency of the proxy endpoint, satisfied
// by *upstream.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, float64, error)
}

type AIHandler struct {
	guard    *service.Guard
	keys     *service.KeyService
	upstream Completer
}

func NewAIHandler(guard *service.Guard, keys *service.KeyService, completer Completer) *AIHandler {
	return &AIHandler{
		guard:    guard,
		keys:     keys,
		upstream: completer,
	}
}

// Proxy is the public completion endpoint: authorize, forward, meter.
// Usage is incremented only after a successful upstream call; failed
// calls are never metered.
func (h *AIHandler) Proxy(c *gin.Context) {
	apiKey := c.Query("apikey")
	prompt := c.Query("prompt")

	if apiKey == "" || prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	ctx := c.Request.Context()

	key, err := h.guard.Authorize(ctx, apiKey)
	if err != nil {
		h.rejectAuthorization(c, err)
		return
	}

	c.Set("key_name", key.Name)

	reply, latency, err := h.upstream.Complete(ctx, prompt)
	if err != nil {
		// Upstream detail is logged, never returned to the caller.
		log.Printf("[%s] upstream call failed: %v", c.GetString("request_id"), err)

		if errors.Is(err, upstream.ErrUpstreamTimeout) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Upstream timeout"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream error"})
		return
	}

	if err := h.keys.IncrementUsage(ctx, key.Key); err != nil {
		log.Printf("[%s] usage increment failed: %v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": providerName,
		"reply":    reply,
		"latency":  latency,
	})
}

func (h *AIHandler) rejectAuthorization(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMissingCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
	case errors.Is(err, service.ErrInvalidKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
	case errors.Is(err, service.ErrExpiredKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "API key expired"})
	default:
		log.Printf("[%s] authorization failed: %v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
