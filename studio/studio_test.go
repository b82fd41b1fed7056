package studio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sketchmagic_back/canvas"
	"sketchmagic_back/dataurl"
	"sketchmagic_back/generator"
	"sketchmagic_back/history"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type fakeTransformer struct {
	mu       sync.Mutex
	requests []generator.TransformRequest
	fail     map[string]error
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeTransformer) Transform(_ context.Context, req generator.TransformRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if err := f.fail[req.AspectRatio]; err != nil {
		return "", err
	}
	return imageFor(req.AspectRatio), nil
}

func (f *fakeTransformer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func imageFor(ratio string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("result "+ratio))
}

type fakeSketcher struct {
	image  string
	prompt string
}

func (f *fakeSketcher) Sketch(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.image, nil
}

func newHistoryStore(t *testing.T) *history.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	return history.NewStore(func() (*gorm.DB, error) {
		return history.OpenDatabase("sqlite", path)
	}, history.Options{Retention: 10, DisplayLimit: 5})
}

func defaultVariantsT(t *testing.T) []Variant {
	t.Helper()
	variants, err := ParseVariants(defaultVariants)
	if err != nil {
		t.Fatalf("ParseVariants: %v", err)
	}
	return variants
}

func newTestStudio(t *testing.T, transformer generator.Transformer, store HistoryStore, canvases CanvasLookup) *Studio {
	t.Helper()
	s, err := New(Config{
		Transformer: transformer,
		History:     store,
		Canvases:    canvases,
		Catalog:     generator.DefaultCatalog(),
		Variants:    defaultVariantsT(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// drawClosedShape traces a square outline with a 5px black brush.
func drawClosedShape(t *testing.T, surface *canvas.Surface) {
	t.Helper()
	if err := surface.SetColor("#000000"); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	surface.SetLineWidth(5)
	display := canvas.Size{Width: 200, Height: 200}
	corners := []canvas.Point{{X: 40, Y: 40}, {X: 160, Y: 40}, {X: 160, Y: 160}, {X: 40, Y: 160}, {X: 40, Y: 40}}
	surface.BeginStroke(corners[0], display)
	for i := 1; i < len(corners); i++ {
		from, to := corners[i-1], corners[i]
		for step := 1; step <= 10; step++ {
			f := float64(step) / 10
			surface.ExtendStroke(canvas.Point{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f}, display)
		}
	}
	if !surface.EndStroke() {
		t.Fatal("EndStroke reported no stroke")
	}
}

func TestParseVariants(t *testing.T) {
	variants, err := ParseVariants(" Square=1:1 , portrait=9:16,landscape=16:9,")
	if err != nil {
		t.Fatalf("ParseVariants: %v", err)
	}
	if len(variants) != 3 || variants[0].Name != "square" || variants[2].AspectRatio != "16:9" {
		t.Fatalf("variants = %+v", variants)
	}

	for _, raw := range []string{"", "square", "square=7:5", "a=1:1,a=9:16", "=1:1"} {
		if _, err := ParseVariants(raw); err == nil {
			t.Errorf("ParseVariants(%q) expected an error", raw)
		}
	}
}

func TestVariantsFromEnvDefault(t *testing.T) {
	t.Setenv("STUDIO_VARIANTS", "")
	variants, err := VariantsFromEnv()
	if err != nil {
		t.Fatalf("VariantsFromEnv: %v", err)
	}
	if len(variants) != 3 {
		t.Fatalf("variants = %+v", variants)
	}
}

func TestTransformEndToEnd(t *testing.T) {
	registry := canvas.NewRegistry(200, 200, time.Minute)
	session, err := registry.Create(0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	drawClosedShape(t, session.Surface)

	store := newHistoryStore(t)
	transformer := &fakeTransformer{}
	s := newTestStudio(t, transformer, store, registry)
	fixed := time.UnixMilli(1_700_000_000_123)
	s.now = func() time.Time { return fixed }

	entry, err := s.Transform(context.Background(), Submission{
		SessionID: session.ID,
		Style:     "anime",
		Category:  "character",
		Detail:    "  a red scarf ",
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if entry.Timestamp != fixed.UnixMilli() {
		t.Fatalf("timestamp = %d", entry.Timestamp)
	}
	if entry.Style != "Anime" || entry.Category != "Character" || entry.Detail != "a red scarf" {
		t.Fatalf("entry = %+v", entry)
	}
	if transformer.calls() != 3 {
		t.Fatalf("transformer calls = %d", transformer.calls())
	}
	for _, req := range transformer.requests {
		if req.Image != session.Surface.Latest() {
			t.Fatal("transformer did not receive the canvas bitmap")
		}
	}

	img, _, err := dataurl.Decode(entry.Original)
	if err != nil {
		t.Fatalf("decode original: %v", err)
	}
	if r, g, b, _ := img.At(40, 100).RGBA(); r>>8 > 32 || g>>8 > 32 || b>>8 > 32 {
		t.Fatalf("stroke pixel at left edge = %d,%d,%d", r>>8, g>>8, b>>8)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("history count = %d", count)
	}
	saved, err := store.Get(context.Background(), fixed.UnixMilli())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	results, err := saved.ResultMap()
	if err != nil {
		t.Fatalf("ResultMap: %v", err)
	}
	want := map[string]string{
		"square":    imageFor("1:1"),
		"portrait":  imageFor("9:16"),
		"landscape": imageFor("16:9"),
	}
	if len(results) != len(want) {
		t.Fatalf("results = %v", results)
	}
	for name, image := range want {
		if results[name] != image {
			t.Errorf("result %s = %q, want %q", name, results[name], image)
		}
	}
}

func TestTransformIsAllOrNothing(t *testing.T) {
	store := newHistoryStore(t)
	quota := &generator.Error{Kind: generator.KindQuota, Status: http.StatusTooManyRequests}
	transformer := &fakeTransformer{fail: map[string]error{"9:16": quota}}
	s := newTestStudio(t, transformer, store, nil)

	entry, err := s.Transform(context.Background(), Submission{
		Sketch:   "data:image/png;base64,AAAA",
		Style:    "Watercolor",
		Category: "Vehicle",
	})
	if err == nil {
		t.Fatal("expected the failing variant to fail the submission")
	}
	if generator.KindOf(err) != generator.KindQuota {
		t.Fatalf("kind = %q", generator.KindOf(err))
	}
	if entry.Timestamp != 0 || len(entry.Results) != 0 {
		t.Fatalf("partial entry returned: %+v", entry)
	}
	if transformer.calls() != 3 {
		t.Fatalf("every variant should have been attempted, calls = %d", transformer.calls())
	}
	if count, err := store.Count(context.Background()); err != nil || count != 0 {
		t.Fatalf("history count = %d, err = %v", count, err)
	}
	if s.Status().Busy {
		t.Fatal("studio still busy after failure")
	}
}

func TestTransformRejectsMissingInput(t *testing.T) {
	registry := canvas.NewRegistry(100, 100, time.Minute)
	transformer := &fakeTransformer{}
	s := newTestStudio(t, transformer, nil, registry)
	ctx := context.Background()

	if _, err := s.Transform(ctx, Submission{Style: "Anime", Category: "Object"}); !errors.Is(err, ErrNoSketch) {
		t.Fatalf("no sketch err = %v", err)
	}
	if _, err := s.Transform(ctx, Submission{SessionID: "missing", Style: "Anime", Category: "Object"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session err = %v", err)
	}
	if _, err := s.Transform(ctx, Submission{Sketch: "data:image/png;base64,AAAA", Style: "Pointillism", Category: "Object"}); !errors.Is(err, ErrUnknownStyle) {
		t.Fatalf("unknown style err = %v", err)
	}
	if _, err := s.Transform(ctx, Submission{Sketch: "data:image/png;base64,AAAA", Style: "Anime", Category: "Building"}); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("unknown category err = %v", err)
	}
	if transformer.calls() != 0 {
		t.Fatalf("transformer called %d times for rejected input", transformer.calls())
	}
}

func TestTransformBusyGate(t *testing.T) {
	transformer := &fakeTransformer{
		started: make(chan struct{}, 3),
		release: make(chan struct{}),
	}
	s := newTestStudio(t, transformer, nil, nil)
	sub := Submission{Sketch: "data:image/png;base64,AAAA", Style: "Anime", Category: "Creature"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Transform(ctx, sub)
		done <- err
	}()
	<-transformer.started

	if !s.Status().Busy {
		t.Fatal("status not busy while transforming")
	}
	if _, err := s.Transform(context.Background(), sub); !errors.Is(err, ErrBusy) {
		t.Fatalf("second submission err = %v", err)
	}

	// Cancelling the caller must not abort the running requests.
	cancel()
	close(transformer.release)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if s.Status().Busy {
		t.Fatal("studio still busy")
	}
}

func TestTimestampsAreUnique(t *testing.T) {
	s := newTestStudio(t, &fakeTransformer{}, nil, nil)
	fixed := time.UnixMilli(5000)
	s.now = func() time.Time { return fixed }
	a, b := s.nextTimestamp(), s.nextTimestamp()
	if a != 5000 || b != 5001 {
		t.Fatalf("timestamps = %d, %d", a, b)
	}
}

func TestReferenceSketchLoadsCanvas(t *testing.T) {
	registry := canvas.NewRegistry(120, 120, time.Minute)
	session, err := registry.Create(0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := session.Surface.Latest()

	reference, err := session.Surface.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	drawClosedShape(t, session.Surface)
	sketched := session.Surface.Latest()
	session.Surface.Reset()
	if session.Surface.Latest() != before {
		t.Fatal("reset did not restore the blank bitmap")
	}

	sketcher := &fakeSketcher{image: sketched}
	s, err := New(Config{
		Transformer: &fakeTransformer{},
		Sketcher:    sketcher,
		Canvases:    registry,
		Variants:    defaultVariantsT(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s.ReferenceSketch(context.Background(), "a cat", session.ID)
	if err != nil {
		t.Fatalf("ReferenceSketch: %v", err)
	}
	if sketcher.prompt != "a cat" {
		t.Fatalf("prompt = %q", sketcher.prompt)
	}
	if got == reference || got != session.Surface.Latest() {
		t.Fatal("reference sketch was not loaded into the canvas")
	}
}

type fakeCredentials struct{ key string }

func (f *fakeCredentials) SetAPIKey(key string) { f.key = key }
func (f *fakeCredentials) HasCredential() bool  { return f.key != "" }

func TestStudioRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	creds := &fakeCredentials{}
	transformer := &fakeTransformer{fail: map[string]error{
		"16:9": &generator.Error{Kind: generator.KindCredential, Status: http.StatusUnauthorized},
	}}
	s, err := New(Config{
		Transformer: transformer,
		Credentials: creds,
		History:     newHistoryStore(t),
		Variants:    defaultVariantsT(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router := gin.New()
	if _, err := RegisterRoutes(router, s); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/studio/bootstrap", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("bootstrap status = %d", rec.Code)
	}
	var boot Bootstrap
	if err := json.Unmarshal(rec.Body.Bytes(), &boot); err != nil {
		t.Fatalf("decode bootstrap: %v", err)
	}
	if boot.Status.Credential || boot.History == nil || len(boot.Catalog.Styles) == 0 {
		t.Fatalf("bootstrap = %+v", boot)
	}

	if rec := do(http.MethodPost, "/studio/transform", `{"style":"Anime","category":"Object"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("no sketch status = %d", rec.Code)
	}

	rec = do(http.MethodPost, "/studio/transform", `{"sketch":"data:image/png;base64,AAAA","style":"Anime","category":"Object"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("credential failure status = %d", rec.Code)
	}
	var failure map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure["kind"] != string(generator.KindCredential) || failure["remediation"] != generator.RemediationReenterCredential {
		t.Fatalf("failure body = %v", failure)
	}

	if rec := do(http.MethodPut, "/studio/credential", `{"api_key":"k-123"}`); rec.Code != http.StatusOK {
		t.Fatalf("credential status = %d", rec.Code)
	}
	if creds.key != "k-123" || !s.Status().Credential {
		t.Fatal("credential was not applied")
	}

	if rec := do(http.MethodPost, "/studio/reference-sketch", `{"session_id":"x","subject":"a dog"}`); rec.Code != http.StatusNotImplemented {
		t.Fatalf("reference sketch without sketcher status = %d", rec.Code)
	}
}
