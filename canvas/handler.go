package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sketchmagic_back/dataurl"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	maxUploadBytes int64 = 10 * 1024 * 1024
	// maxImageBodyBytes caps PUT /image: a base64 data URL of an upload-sized
	// image plus the JSON envelope.
	maxImageBodyBytes = maxUploadBytes*4/3 + 4096
)

// Module serves the drawing sessions over HTTP, SSE and websockets.
type Module struct {
	sessions *Registry
	upgrader websocket.Upgrader
}

type createSessionRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type brushRequest struct {
	Color  *string `json:"color"`
	Width  *int    `json:"width"`
	Eraser *bool   `json:"eraser"`
}

type pointerRequest struct {
	Events []PointerEvent `json:"events" binding:"required"`
}

type imageRequest struct {
	Image string `json:"image" binding:"required"`
}

type sessionDTO struct {
	ID        string `json:"id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Brush     Brush  `json:"brush"`
	Cursor    Cursor `json:"cursor"`
	Image     string `json:"image"`
	CreatedAt int64  `json:"created_at"`
}

// RegisterRoutes mounts the drawing-surface endpoints under /canvas.
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	sessions, err := NewRegistryFromEnv()
	if err != nil {
		return nil, err
	}
	module := NewModule(sessions)
	module.Mount(router)
	return module, nil
}

// NewModule wraps an existing registry.
func NewModule(sessions *Registry) *Module {
	return &Module{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Mount registers the routes on router.
func (m *Module) Mount(router gin.IRouter) {
	group := router.Group("/canvas")
	group.GET("/palette", m.handlePalette)
	group.POST("/sessions", m.handleCreateSession)
	group.GET("/sessions/:id", m.handleGetSession)
	group.DELETE("/sessions/:id", m.handleDeleteSession)
	group.PUT("/sessions/:id/brush", m.handleUpdateBrush)
	group.POST("/sessions/:id/pointer", m.handlePointer)
	group.POST("/sessions/:id/reset", m.handleReset)
	group.PUT("/sessions/:id/image", m.handleLoadImage)
	group.POST("/sessions/:id/upload", m.handleUpload)
	group.GET("/sessions/:id/snapshot.png", m.handleSnapshot)
	group.GET("/sessions/:id/events", m.handleEvents)
	group.GET("/sessions/:id/ws", m.handleSocket)
}

// Sessions exposes the registry, e.g. for the idle sweeper.
func (m *Module) Sessions() *Registry {
	if m == nil {
		return nil
	}
	return m.sessions
}

// Lookup returns the surface of a session.
func (m *Module) Lookup(id string) (Canvas, bool) {
	if m == nil || m.sessions == nil {
		return nil, false
	}
	return m.sessions.Lookup(id)
}

// handlePalette lists the palette colours and brush width bounds.
func (m *Module) handlePalette(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"colors":        Palette(),
		"min_width":     MinLineWidth,
		"max_width":     MaxLineWidth,
		"default_brush": DefaultBrush(),
	})
}

// handleCreateSession opens a session, optionally with explicit dimensions.
func (m *Module) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
	}
	if req.Width < 0 || req.Height < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidSize.Error()})
		return
	}

	session, err := m.sessions.Create(req.Width, req.Height)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": toDTO(session)})
}

// handleGetSession returns the session's brush, cursor and latest image.
func (m *Module) handleGetSession(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": toDTO(session)})
}

// handleDeleteSession removes a session and closes its subscribers.
func (m *Module) handleDeleteSession(c *gin.Context) {
	if !m.sessions.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleUpdateBrush patches colour, width or eraser mode.
func (m *Module) handleUpdateBrush(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}
	var req brushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := applyBrush(session.Surface, req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"brush": session.Surface.Brush(), "cursor": session.Surface.Cursor()})
}

// applyBrush merges the set fields of req into the surface's brush.
func applyBrush(surface *Surface, req brushRequest) error {
	next := surface.Brush()
	if req.Color != nil {
		next.Color = *req.Color
	}
	if req.Width != nil {
		next.Width = *req.Width
	}
	if req.Eraser != nil {
		next.Eraser = *req.Eraser
	}
	return surface.SetBrush(next)
}

// handlePointer replays a batch of pointer events and returns the latest
// image when a stroke segment was rendered.
func (m *Module) handlePointer(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}
	var req pointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	emitted := false
	for _, ev := range req.Events {
		if session.Surface.Dispatch(ev) {
			emitted = true
		}
	}

	payload := gin.H{"cursor": session.Surface.Cursor(), "drawing": session.Surface.Drawing()}
	if emitted {
		payload["image"] = session.Surface.Latest()
	}
	c.JSON(http.StatusOK, payload)
}

// handleReset clears the surface.
func (m *Module) handleReset(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}
	session.Surface.Reset()
	c.JSON(http.StatusOK, gin.H{"image": "", "empty": true})
}

// handleLoadImage replaces the surface with a data URL image.
func (m *Module) handleLoadImage(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBodyBytes)
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", maxImageBodyBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := session.Surface.LoadImage(req.Image); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": session.Surface.Latest()})
}

// handleUpload accepts a multipart image file, crops and flattens it onto
// white, then loads it into the surface.
func (m *Module) handleUpload(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", maxUploadBytes)})
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	if int64(len(data)) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", maxUploadBytes)})
		return
	}

	img, _, err := dataurl.DecodeBytes(data)
	if err != nil {
		if errors.Is(err, dataurl.ErrTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image format"})
		return
	}

	crop, err := parseCrop(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	flat, err := Flatten(img, crop)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	encoded, err := dataurl.Encode(flat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode image"})
		return
	}
	if err := session.Surface.LoadImage(encoded); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": session.Surface.Latest()})
}

// parseCrop reads the optional crop_* form fields; all four or none.
func parseCrop(c *gin.Context) (image.Rectangle, error) {
	fields := []string{"crop_x", "crop_y", "crop_width", "crop_height"}
	values := make([]int, len(fields))
	present := 0
	for i, field := range fields {
		raw := strings.TrimSpace(c.PostForm(field))
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("%s must be an integer", field)
		}
		values[i] = parsed
		present++
	}
	if present == 0 {
		return image.Rectangle{}, nil
	}
	if present != len(fields) {
		return image.Rectangle{}, errors.New("crop requires crop_x, crop_y, crop_width and crop_height")
	}
	if values[2] <= 0 || values[3] <= 0 {
		return image.Rectangle{}, ErrEmptyCrop
	}
	return image.Rect(values[0], values[1], values[0]+values[2], values[1]+values[3]), nil
}

// handleSnapshot renders the surface as PNG, with the cursor overlay when
// ?cursor=true.
func (m *Module) handleSnapshot(c *gin.Context) {
	session, ok := m.session(c)
	if !ok {
		return
	}
	withCursor := false
	if raw := strings.TrimSpace(c.Query("cursor")); raw != "" {
		withCursor, _ = strconv.ParseBool(raw)
	}
	data, err := session.Surface.Snapshot(withCursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render snapshot"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

// handleEvents streams image events as Server-Sent Events. The session
// stays pinned while the stream is open.
func (m *Module) handleEvents(c *gin.Context) {
	session, release, err := m.sessions.Attach(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	defer release()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	events, cancel := session.Surface.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := streamEvent(c.Writer, flusher, "image", ev); err != nil {
				return
			}
		}
	}
}

// streamEvent writes a single Server-Sent Event.
func streamEvent(w gin.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// session resolves :id, writing a 404 when it is unknown.
func (m *Module) session(c *gin.Context) (*Session, bool) {
	session, err := m.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

// toDTO flattens a session into its JSON view.
func toDTO(session *Session) sessionDTO {
	size := session.Surface.Size()
	return sessionDTO{
		ID:        session.ID,
		Width:     int(size.Width),
		Height:    int(size.Height),
		Brush:     session.Surface.Brush(),
		Cursor:    session.Surface.Cursor(),
		Image:     session.Surface.Latest(),
		CreatedAt: session.CreatedAt.Unix(),
	}
}
