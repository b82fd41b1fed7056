package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sketchmagic_back/canvas"
	"sketchmagic_back/generator"
	"sketchmagic_back/history"
	"sketchmagic_back/settings"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSketch         = errors.New("studio: add a sketch to the drawing box first")
	ErrBusy             = errors.New("studio: a transformation is already running")
	ErrSessionNotFound  = errors.New("studio: canvas session not found")
	ErrUnknownStyle     = errors.New("studio: unknown style")
	ErrUnknownCategory  = errors.New("studio: unknown category")
	ErrNoSketcher       = errors.New("studio: reference sketches are not available")
	ErrNoCredentialSink = errors.New("studio: credentials cannot be changed at runtime")
)

// HistoryStore is the part of the history store the studio writes to.
type HistoryStore interface {
	Put(ctx context.Context, entry history.Entry) error
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// CanvasLookup resolves a drawing session to its surface.
type CanvasLookup interface {
	Lookup(id string) (canvas.Canvas, bool)
}

// Credentials is implemented by generator clients that accept a key at runtime.
type Credentials interface {
	SetAPIKey(key string)
	HasCredential() bool
}

// Config wires the collaborators. Transformer and Variants are required.
type Config struct {
	Transformer generator.Transformer
	Sketcher    generator.Sketcher
	Credentials Credentials
	History     HistoryStore
	Canvases    CanvasLookup
	Preferences *settings.Settings
	Catalog     generator.Catalog
	Variants    []Variant
}

// Submission is one "transform my sketch" request. Sketch wins over
// SessionID when both are set.
type Submission struct {
	SessionID string `json:"session_id"`
	Sketch    string `json:"sketch"`
	Style     string `json:"style"`
	Category  string `json:"category"`
	Detail    string `json:"detail"`
}

// Status is the studio state polled by the front-end.
type Status struct {
	Busy       bool      `json:"busy"`
	Credential bool      `json:"credential"`
	Variants   []Variant `json:"variants"`
}

// Bootstrap is everything the front-end reads once on load.
type Bootstrap struct {
	Preferences  settings.Preferences `json:"preferences"`
	History      []history.Entry      `json:"history"`
	Catalog      generator.Catalog    `json:"catalog"`
	Status       Status               `json:"status"`
	AspectRatios []string             `json:"aspect_ratios"`
}

// Studio runs submissions against the image service, one at a time.
type Studio struct {
	transformer generator.Transformer
	sketcher    generator.Sketcher
	credentials Credentials
	history     HistoryStore
	canvases    CanvasLookup
	prefs       *settings.Settings
	catalog     generator.Catalog
	variants    []Variant

	busy atomic.Bool

	mu            sync.Mutex
	lastTimestamp int64
	now           func() time.Time
}

// New validates cfg and builds a Studio. Transformer and at least one
// variant are required; an empty catalog falls back to the default one.
func New(cfg Config) (*Studio, error) {
	if cfg.Transformer == nil {
		return nil, errors.New("studio: transformer is required")
	}
	if len(cfg.Variants) == 0 {
		return nil, errors.New("studio: at least one variant is required")
	}
	if len(cfg.Catalog.Styles) == 0 && len(cfg.Catalog.Categories) == 0 {
		cfg.Catalog = generator.DefaultCatalog()
	}
	return &Studio{
		transformer: cfg.Transformer,
		sketcher:    cfg.Sketcher,
		credentials: cfg.Credentials,
		history:     cfg.History,
		canvases:    cfg.Canvases,
		prefs:       cfg.Preferences,
		catalog:     cfg.Catalog,
		variants:    append([]Variant(nil), cfg.Variants...),
		now:         time.Now,
	}, nil
}

// Transform generates every configured variant for the submission. All
// variants must succeed: a single failure fails the whole submission and no
// partial result is returned. A submission made while another is running is
// rejected with ErrBusy; running requests are never cancelled, not even by
// the caller's context.
func (s *Studio) Transform(ctx context.Context, sub Submission) (history.Entry, error) {
	sketch, err := s.resolveSketch(sub)
	if err != nil {
		return history.Entry{}, err
	}
	style, ok := s.catalog.LookupStyle(sub.Style)
	if !ok {
		return history.Entry{}, fmt.Errorf("%w %q", ErrUnknownStyle, sub.Style)
	}
	category, ok := s.catalog.LookupCategory(sub.Category)
	if !ok {
		return history.Entry{}, fmt.Errorf("%w %q", ErrUnknownCategory, sub.Category)
	}

	if !s.busy.CompareAndSwap(false, true) {
		return history.Entry{}, ErrBusy
	}
	defer s.busy.Store(false)

	detached := context.WithoutCancel(ctx)
	images := make([]string, len(s.variants))
	var g errgroup.Group
	for i, variant := range s.variants {
		g.Go(func() error {
			image, err := s.transformer.Transform(detached, generator.TransformRequest{
				Image:       sketch,
				Style:       style.ID,
				Category:    category.ID,
				Detail:      sub.Detail,
				AspectRatio: variant.AspectRatio,
			})
			if err != nil {
				return fmt.Errorf("studio: variant %s: %w", variant.Name, err)
			}
			images[i] = image
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("studio: transformation failed: %v", err)
		return history.Entry{}, err
	}

	results := make(map[string]string, len(s.variants))
	for i, variant := range s.variants {
		results[variant.Name] = images[i]
	}
	timestamp := s.nextTimestamp()
	entry := history.Entry{
		Timestamp: timestamp,
		Original:  sketch,
		Style:     style.ID,
		Category:  category.ID,
		Detail:    strings.TrimSpace(sub.Detail),
		CreatedAt: time.UnixMilli(timestamp).UTC(),
	}
	if err := entry.SetResults(results); err != nil {
		return history.Entry{}, err
	}

	if s.history != nil {
		if err := s.history.Put(detached, entry); err != nil {
			log.Printf("studio: save history entry %d failed: %v", entry.Timestamp, err)
		}
	}
	return entry, nil
}

// resolveSketch prefers an inline sketch and otherwise exports the canvas of
// SessionID.
func (s *Studio) resolveSketch(sub Submission) (string, error) {
	if sketch := strings.TrimSpace(sub.Sketch); sketch != "" {
		return sketch, nil
	}
	id := strings.TrimSpace(sub.SessionID)
	if id == "" {
		return "", ErrNoSketch
	}
	if s.canvases == nil {
		return "", ErrSessionNotFound
	}
	surface, ok := s.canvases.Lookup(id)
	if !ok {
		return "", ErrSessionNotFound
	}
	sketch := surface.Latest()
	if sketch == "" {
		return "", ErrNoSketch
	}
	return sketch, nil
}

// nextTimestamp returns the current epoch milliseconds, bumped past the
// previous value so history keys stay unique.
func (s *Studio) nextTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.lastTimestamp {
		ts = s.lastTimestamp + 1
	}
	s.lastTimestamp = ts
	return ts
}

// ReferenceSketch asks for an underdrawing of subject and loads it into the
// canvas session.
func (s *Studio) ReferenceSketch(ctx context.Context, subject, sessionID string) (string, error) {
	if s.sketcher == nil {
		return "", ErrNoSketcher
	}
	if s.canvases == nil {
		return "", ErrSessionNotFound
	}
	surface, ok := s.canvases.Lookup(strings.TrimSpace(sessionID))
	if !ok {
		return "", ErrSessionNotFound
	}
	image, err := s.sketcher.Sketch(ctx, subject)
	if err != nil {
		return "", err
	}
	if err := surface.LoadImage(image); err != nil {
		return "", fmt.Errorf("studio: load reference sketch: %w", err)
	}
	return surface.Latest(), nil
}

// SetCredential re-enters the image service API key.
func (s *Studio) SetCredential(key string) error {
	if s.credentials == nil {
		return ErrNoCredentialSink
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("studio: api key is empty")
	}
	s.credentials.SetAPIKey(key)
	return nil
}

// Status reports the busy flag, credential presence and configured variants.
func (s *Studio) Status() Status {
	credential := true
	if s.credentials != nil {
		credential = s.credentials.HasCredential()
	}
	return Status{
		Busy:       s.busy.Load(),
		Credential: credential,
		Variants:   append([]Variant(nil), s.variants...),
	}
}

// Bootstrap collects preferences, recent history and the catalog. History
// failures degrade to an empty list.
func (s *Studio) Bootstrap(ctx context.Context) Bootstrap {
	out := Bootstrap{
		Preferences:  s.prefs.Load(ctx),
		History:      []history.Entry{},
		Catalog:      s.catalog,
		Status:       s.Status(),
		AspectRatios: append([]string(nil), generator.SupportedAspectRatios...),
	}
	if s.history != nil {
		entries, err := s.history.Recent(ctx, 0)
		if err != nil {
			log.Printf("studio: load history failed: %v", err)
		} else {
			out.History = entries
		}
	}
	return out
}
