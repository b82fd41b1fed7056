// Package settings persists the two user preference flags: whether the
// tutorial was already shown and the light/dark theme.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"sketchmagic_back/cache"

	"gorm.io/gorm"
)

const (
	KeyTutorialSeen = "tutorial_seen"
	KeyTheme        = "theme"

	ThemeLight = "light"
	ThemeDark  = "dark"
)

var ErrUnknownKey = errors.New("settings: unknown preference key")

// Preferences is the snapshot read once at startup.
type Preferences struct {
	TutorialSeen bool   `json:"tutorial_seen"`
	Theme        string `json:"theme"`
}

// Defaults are used for missing or unreadable values.
func Defaults() Preferences {
	return Preferences{TutorialSeen: false, Theme: ThemeLight}
}

// Settings validates preference writes and reads them with fallbacks.
type Settings struct {
	kv KV
}

// New wraps kv. A nil kv serves the defaults and rejects writes.
func New(kv KV) *Settings {
	return &Settings{kv: kv}
}

// NewFromEnv prefers redis when it is reachable and otherwise keeps the
// flags in db.
func NewFromEnv(db *gorm.DB) (*Settings, error) {
	if client, err := cache.GetRedisClient(); err == nil {
		return New(NewRedisStore(client)), nil
	}
	store, err := NewDBStore(db)
	if err != nil {
		return nil, err
	}
	return New(store), nil
}

// Load returns the stored preferences. Read failures are logged and the
// default for that flag is used.
func (s *Settings) Load(ctx context.Context) Preferences {
	prefs := Defaults()
	if s == nil || s.kv == nil {
		return prefs
	}

	if raw, ok := s.read(ctx, KeyTutorialSeen); ok {
		if seen, err := strconv.ParseBool(raw); err == nil {
			prefs.TutorialSeen = seen
		}
	}
	if raw, ok := s.read(ctx, KeyTheme); ok {
		if theme, err := normalizeTheme(raw); err == nil {
			prefs.Theme = theme
		}
	}
	return prefs
}

// read fetches a raw value; ok is false on a miss or a logged failure.
func (s *Settings) read(ctx context.Context, key string) (string, bool) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMissing) {
			log.Printf("settings: read %s failed: %v", key, err)
		}
		return "", false
	}
	return raw, true
}

// Save validates and stores one flag, returning the normalised value.
func (s *Settings) Save(ctx context.Context, key, value string) (string, error) {
	if s == nil || s.kv == nil {
		return "", errors.New("settings: no store configured")
	}
	normalized, err := normalize(key, value)
	if err != nil {
		return "", err
	}
	if err := s.kv.Set(ctx, key, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// normalize validates value for key and returns its canonical form.
func normalize(key, value string) (string, error) {
	switch key {
	case KeyTutorialSeen:
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("settings: %s must be a boolean", key)
		}
		return strconv.FormatBool(parsed), nil
	case KeyTheme:
		return normalizeTheme(value)
	default:
		return "", ErrUnknownKey
	}
}

// normalizeTheme accepts light or dark in any case.
func normalizeTheme(raw string) (string, error) {
	switch theme := strings.ToLower(strings.TrimSpace(raw)); theme {
	case ThemeLight, ThemeDark:
		return theme, nil
	default:
		return "", fmt.Errorf("settings: theme must be %q or %q", ThemeLight, ThemeDark)
	}
}
