package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newDBStore(t *testing.T) *DBStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "settings.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store, err := NewDBStore(db)
	if err != nil {
		t.Fatalf("NewDBStore: %v", err)
	}
	return store
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", errors.New("offline") }
func (failingKV) Set(context.Context, string, string) error   { return errors.New("offline") }

func TestPreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(newDBStore(t))

	if got := s.Load(ctx); got != Defaults() {
		t.Fatalf("fresh Load = %+v", got)
	}
	if _, err := s.Save(ctx, KeyTutorialSeen, "TRUE"); err != nil {
		t.Fatalf("Save tutorial: %v", err)
	}
	if _, err := s.Save(ctx, KeyTheme, " Dark "); err != nil {
		t.Fatalf("Save theme: %v", err)
	}
	if _, err := s.Save(ctx, KeyTheme, "light"); err != nil {
		t.Fatalf("overwrite theme: %v", err)
	}

	got := s.Load(ctx)
	if !got.TutorialSeen || got.Theme != ThemeLight {
		t.Fatalf("Load = %+v", got)
	}
}

func TestSaveValidation(t *testing.T) {
	s := New(newDBStore(t))
	ctx := context.Background()
	if _, err := s.Save(ctx, "volume", "11"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown key err = %v", err)
	}
	if _, err := s.Save(ctx, KeyTheme, "sepia"); err == nil {
		t.Fatal("expected an error for an unknown theme")
	}
	if _, err := s.Save(ctx, KeyTutorialSeen, "maybe"); err == nil {
		t.Fatal("expected an error for a non-boolean flag")
	}
}

func TestLoadDegradesOnFailure(t *testing.T) {
	s := New(failingKV{})
	if got := s.Load(context.Background()); got != Defaults() {
		t.Fatalf("Load = %+v", got)
	}
}

func TestSettingsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if _, err := RegisterRoutes(router, New(newDBStore(t))); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}

	put := func(key string, body string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/settings/"+key, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := put(KeyTutorialSeen, `{"value":true}`); code != http.StatusOK {
		t.Fatalf("save flag status = %d", code)
	}
	if code := put(KeyTheme, `{"value":"dark"}`); code != http.StatusOK {
		t.Fatalf("save theme status = %d", code)
	}
	if code := put(KeyTheme, `{"value":"neon"}`); code != http.StatusBadRequest {
		t.Fatalf("invalid theme status = %d", code)
	}
	if code := put("font", `{"value":"serif"}`); code != http.StatusNotFound {
		t.Fatalf("unknown key status = %d", code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	var resp struct {
		Preferences Preferences `json:"preferences"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Preferences.TutorialSeen || resp.Preferences.Theme != ThemeDark {
		t.Fatalf("preferences = %+v", resp.Preferences)
	}
}
