package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quricedev/alice-ai/internal/service"
)

const defaultLifetimeDays = 30

type KeyHandler struct {
	service *service.KeyService
}

func NewKeyHandler(service *service.KeyService) *KeyHandler {
	return &KeyHandler{service: service}
}

func (h *KeyHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Days int    `json:"days" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	key, err := h.service.Create(ctx, req.Name, req.Days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, key)
}

func (h *KeyHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := h.service.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, keys)
}

// Usage resolves :token as a key first, then as an owner name.
func (h *KeyHandler) Usage(c *gin.Context) {
	token := c.Param("token")

	ctx := c.Request.Context()
	key, err := h.service.GetUsage(ctx, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if key == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":   key.Name,
		"usage":  key.Usage,
		"active": key.Active,
	})
}

// Rotate revokes every key for :name and issues a fresh one. The old
// keys' usage history is not carried over.
func (h *KeyHandler) Rotate(c *gin.Context) {
	name := c.Param("name")

	var req struct {
		Days int `json:"days"`
	}
	// Body is optional; a bare rotate uses the default lifetime.
	if err := c.ShouldBindJSON(&req); err != nil || req.Days <= 0 {
		req.Days = defaultLifetimeDays
	}

	ctx := c.Request.Context()
	key, err := h.service.Rotate(ctx, name, req.Days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, key)
}

func (h *KeyHandler) Delete(c *gin.Context) {
	token := c.Param("token")

	ctx := c.Request.Context()
	count, err := h.service.DeleteByKeyOrName(ctx, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": count})
}
