package studio

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"sketchmagic_back/generator"

	"github.com/gin-gonic/gin"
)

type transformRequest struct {
	SessionID string `json:"session_id"`
	Sketch    string `json:"sketch"`
	Style     string `json:"style" binding:"required"`
	Category  string `json:"category" binding:"required"`
	Detail    string `json:"detail"`
}

type referenceSketchRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Subject   string `json:"subject" binding:"required"`
}

type credentialRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// Module exposes the studio over HTTP.
type Module struct {
	studio *Studio
}

// RegisterRoutes mounts the /studio endpoints.
func RegisterRoutes(router *gin.Engine, studio *Studio) (*Module, error) {
	if studio == nil {
		return nil, errors.New("studio: studio is required")
	}
	module := &Module{studio: studio}
	group := router.Group("/studio")
	group.GET("/bootstrap", module.handleBootstrap)
	group.GET("/status", module.handleStatus)
	group.POST("/transform", module.handleTransform)
	group.POST("/reference-sketch", module.handleReferenceSketch)
	group.PUT("/credential", module.handleCredential)
	return module, nil
}

// handleBootstrap returns catalog, preferences and recent history.
func (m *Module) handleBootstrap(c *gin.Context) {
	c.JSON(http.StatusOK, m.studio.Bootstrap(c.Request.Context()))
}

// handleStatus reports busy and credential state.
func (m *Module) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, m.studio.Status())
}

// handleTransform runs one all-or-nothing transformation.
func (m *Module) handleTransform(c *gin.Context) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "style and category are required"})
		return
	}

	entry, err := m.studio.Transform(c.Request.Context(), Submission{
		SessionID: req.SessionID,
		Sketch:    req.Sketch,
		Style:     req.Style,
		Category:  req.Category,
		Detail:    req.Detail,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	results, err := entry.ResultMap()
	if err != nil {
		log.Printf("studio: decode results for %d failed: %v", entry.Timestamp, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": entry.Timestamp,
		"results":   results,
		"entry":     entry,
	})
}

// handleReferenceSketch generates a line drawing into a canvas session.
func (m *Module) handleReferenceSketch(c *gin.Context) {
	var req referenceSketchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Subject) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and subject are required"})
		return
	}

	image, err := m.studio.ReferenceSketch(c.Request.Context(), req.Subject, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": image})
}

// handleCredential replaces the API key at runtime.
func (m *Module) handleCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.APIKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}
	if err := m.studio.SetCredential(req.APIKey); err != nil {
		if errors.Is(err, ErrNoCredentialSink) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m.studio.Status())
}

// respondError maps studio and generator failures onto HTTP responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoSketch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please draw or upload a sketch first.", "kind": "no_sketch"})
		return
	case errors.Is(err, ErrUnknownStyle), errors.Is(err, ErrUnknownCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(generator.KindInvalidArgument)})
		return
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "canvas session not found"})
		return
	case errors.Is(err, ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "A transformation is already running.", "kind": "busy"})
		return
	case errors.Is(err, ErrNoSketcher):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}

	var genErr *generator.Error
	if !errors.As(err, &genErr) {
		log.Printf("studio: request failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": generator.Message(generator.KindTransient),
			"kind":  string(generator.KindTransient),
		})
		return
	}

	body := gin.H{"error": genErr.Message(), "kind": string(genErr.Kind)}
	if remediation := genErr.Remediation(); remediation != "" {
		body["remediation"] = remediation
	}
	c.JSON(statusForKind(genErr.Kind), body)
}

// statusForKind picks the HTTP status for a failure kind.
func statusForKind(kind generator.Kind) int {
	switch kind {
	case generator.KindCredential:
		return http.StatusUnauthorized
	case generator.KindQuota:
		return http.StatusTooManyRequests
	case generator.KindSafety:
		return http.StatusUnprocessableEntity
	case generator.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
