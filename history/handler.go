package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"sketchmagic_back/export"

	"github.com/gin-gonic/gin"
)

const maxListLimit = 100

// presignTTL is how long links handed out for a private bucket stay valid.
const presignTTL = 24 * time.Hour

// Publisher uploads an encoded image and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, encoded string, pathSegments ...string) (string, error)
}

// Signer is implemented by publishers that can exchange a public URL for a
// time-limited one. Private reports whether that exchange is required.
type Signer interface {
	Private() bool
	PresignedURL(ctx context.Context, raw string, expiry time.Duration) (string, error)
}

// Module serves the generation history.
type Module struct {
	store     *Store
	publisher Publisher
}

// RegisterRoutes mounts /history. publisher may be nil when object storage
// is not configured.
func RegisterRoutes(router *gin.Engine, store *Store, publisher Publisher) (*Module, error) {
	if store == nil {
		return nil, errors.New("history: store is required")
	}
	if err := store.Initialize(context.Background()); err != nil {
		log.Printf("history: initialize failed, serving empty history: %v", err)
	}

	module := &Module{store: store, publisher: publisher}
	group := router.Group("/history")
	group.GET("", module.handleList)
	group.GET("/:timestamp", module.handleGet)
	group.GET("/:timestamp/sheet.png", module.handleSheet)
	group.GET("/:timestamp/pdf", module.handlePDF)
	group.POST("/:timestamp/publish", module.handlePublish)
	return module, nil
}

// handleList returns the newest entries, optionally capped by ?limit.
func (m *Module) handleList(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	entries, err := m.store.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Printf("history: list failed: %v", err)
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "retention": m.store.Retention()})
}

// handleGet returns one entry by timestamp.
func (m *Module) handleGet(c *gin.Context) {
	entry, ok := m.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// handleSheet renders the entry as a PNG contact sheet.
func (m *Module) handleSheet(c *gin.Context) {
	entry, ok := m.entry(c)
	if !ok {
		return
	}
	doc, err := entry.Document()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data, err := export.Sheet(doc)
	if err != nil {
		log.Printf("history: render sheet %d failed: %v", entry.Timestamp, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render sheet"})
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// handlePDF renders the entry as a downloadable PDF.
func (m *Module) handlePDF(c *gin.Context) {
	entry, ok := m.entry(c)
	if !ok {
		return
	}
	doc, err := entry.Document()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := export.PDF(doc, &buf); err != nil {
		log.Printf("history: render pdf %d failed: %v", entry.Timestamp, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render pdf"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="sketch-%d.pdf"`, entry.Timestamp))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// handlePublish uploads the original and every variant to object storage
// and returns their URLs, presigned when the bucket is private.
func (m *Module) handlePublish(c *gin.Context) {
	if m.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage is not configured"})
		return
	}
	entry, ok := m.entry(c)
	if !ok {
		return
	}
	results, err := entry.ResultMap()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	folder := strconv.FormatInt(entry.Timestamp, 10)
	urls := make(map[string]string, len(results))
	original, err := m.publisher.Publish(ctx, entry.Original, folder)
	if err != nil {
		log.Printf("history: publish original %d failed: %v", entry.Timestamp, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to publish images"})
		return
	}
	for _, name := range sortedKeys(results) {
		url, err := m.publisher.Publish(ctx, results[name], folder)
		if err != nil {
			log.Printf("history: publish %s of %d failed: %v", name, entry.Timestamp, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to publish images"})
			return
		}
		urls[name] = url
	}

	signer, ok := m.publisher.(Signer)
	if !ok || !signer.Private() {
		c.JSON(http.StatusOK, gin.H{"original": original, "results": urls})
		return
	}
	if original, err = signer.PresignedURL(ctx, original, presignTTL); err != nil {
		log.Printf("history: presign original %d failed: %v", entry.Timestamp, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to sign published images"})
		return
	}
	for name, url := range urls {
		signed, err := signer.PresignedURL(ctx, url, presignTTL)
		if err != nil {
			log.Printf("history: presign %s of %d failed: %v", name, entry.Timestamp, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to sign published images"})
			return
		}
		urls[name] = signed
	}
	c.JSON(http.StatusOK, gin.H{
		"original":   original,
		"results":    urls,
		"expires_in": int64(presignTTL.Seconds()),
	})
}

// entry resolves :timestamp, writing the error response on failure.
func (m *Module) entry(c *gin.Context) (Entry, bool) {
	timestamp, err := strconv.ParseInt(strings.TrimSpace(c.Param("timestamp")), 10, 64)
	if err != nil || timestamp <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
		return Entry{}, false
	}
	entry, err := m.store.Get(c.Request.Context(), timestamp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		} else {
			log.Printf("history: get %d failed: %v", timestamp, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
		}
		return Entry{}, false
	}
	return entry, true
}

// Document converts the entry into the export input.
func (e Entry) Document() (export.Document, error) {
	results, err := e.ResultMap()
	if err != nil {
		return export.Document{}, err
	}
	doc := export.Document{
		Title:     fmt.Sprintf("%s / %s", e.Style, e.Category),
		Original:  e.Original,
		Style:     e.Style,
		Category:  e.Category,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt,
	}
	for _, name := range sortedKeys(results) {
		doc.Variants = append(doc.Variants, export.Variant{Name: name, Image: results[name]})
	}
	return doc, nil
}

// sortedKeys returns the variant names in a stable order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
