package settings

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type saveRequest struct {
	Value any `json:"value"`
}

// Module serves the preference flags.
type Module struct {
	settings *Settings
}

// RegisterRoutes mounts GET /settings and PUT /settings/:key.
func RegisterRoutes(router *gin.Engine, settings *Settings) (*Module, error) {
	if settings == nil {
		return nil, errors.New("settings: settings are required")
	}
	module := &Module{settings: settings}
	router.GET("/settings", module.handleLoad)
	router.PUT("/settings/:key", module.handleSave)
	return module, nil
}

// handleLoad returns both flags with defaults applied.
func (m *Module) handleLoad(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"preferences": m.settings.Load(c.Request.Context())})
}

// handleSave validates and stores one flag.
func (m *Module) handleSave(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	key := c.Param("key")
	value, err := m.settings.Save(c.Request.Context(), key, fmt.Sprint(req.Value))
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if _, invalid := normalize(key, fmt.Sprint(req.Value)); invalid != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		log.Printf("settings: save %s failed: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}
