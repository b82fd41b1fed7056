package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"sketchmagic_back/cache"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultRetention    = 10
	defaultDisplayLimit = 5
	recentCacheTTL      = 30 * time.Second
)

var (
	ErrNotFound     = errors.New("history: entry not found")
	ErrInvalidEntry = errors.New("history: entry timestamp must be positive")
)

type state int

const (
	stateUninitialized state = iota
	stateOpening
	stateReady
)

// String names the state for logs.
func (s state) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Store is the bounded history of generations. The database is opened on
// first use; every operation goes through Initialize.
type Store struct {
	mu    sync.Mutex
	state state
	open  func() (*gorm.DB, error)
	db    *gorm.DB

	retention    int
	displayLimit int
	recent       *cache.JSON
}

// Options tunes a Store.
type Options struct {
	Retention    int
	DisplayLimit int
	Cache        *cache.JSON
}

// NewStore builds a store around a lazy opener.
func NewStore(open func() (*gorm.DB, error), opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.DisplayLimit <= 0 {
		opts.DisplayLimit = defaultDisplayLimit
	}
	return &Store{
		open:         open,
		retention:    opts.Retention,
		displayLimit: opts.DisplayLimit,
		recent:       opts.Cache,
	}
}

// NewStoreFromEnv reads HISTORY_RETENTION and HISTORY_DISPLAY_LIMIT and
// attaches the redis recent-list cache when redis is reachable. The database
// itself is opened lazily by Initialize through open; nil selects
// OpenDatabaseFromEnv.
func NewStoreFromEnv(open func() (*gorm.DB, error)) (*Store, error) {
	if open == nil {
		open = OpenDatabaseFromEnv
	}
	retention, err := envPositiveInt("HISTORY_RETENTION", defaultRetention)
	if err != nil {
		return nil, err
	}
	displayLimit, err := envPositiveInt("HISTORY_DISPLAY_LIMIT", defaultDisplayLimit)
	if err != nil {
		return nil, err
	}

	var recent *cache.JSON
	if client, err := cache.GetRedisClient(); err == nil {
		recent = cache.NewJSON(client, "history:recent:", recentCacheTTL)
	} else {
		log.Printf("history: recent cache disabled: %v", err)
	}

	return NewStore(open, Options{
		Retention:    retention,
		DisplayLimit: displayLimit,
		Cache:        recent,
	}), nil
}

// envPositiveInt reads a positive integer from key, falling back when unset.
func envPositiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("history: invalid %s value %q", key, raw)
	}
	return value, nil
}

// Retention is the maximum number of persisted entries.
func (s *Store) Retention() int { return s.retention }

// DisplayLimit is the default size of a Recent listing.
func (s *Store) DisplayLimit() int { return s.displayLimit }

// Initialize opens the database and applies the schema on first open. It is
// idempotent; a failed open leaves the store uninitialized so the next call
// retries.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.ready(ctx)
	return err
}

// ready returns a context-bound handle, opening and migrating on first use.
func (s *Store) ready(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateReady {
		return s.db.WithContext(ctx), nil
	}
	if s.open == nil {
		return nil, errors.New("history: store has no database")
	}

	s.state = stateOpening
	db, err := s.open()
	if err != nil {
		s.state = stateUninitialized
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		s.state = stateUninitialized
		return nil, err
	}
	s.db = db
	s.state = stateReady
	return db.WithContext(ctx), nil
}

// migrate creates the tables unless the recorded schema version is current.
func migrate(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	if tx.Migrator().HasTable(&schemaRow{}) {
		var row schemaRow
		err := tx.Take(&row, 1).Error
		switch {
		case err == nil && row.Version >= schemaVersion:
			return nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("history: read schema version: %w", err)
		}
	}

	if err := tx.AutoMigrate(&schemaRow{}, &Entry{}); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	row := schemaRow{ID: 1, Version: schemaVersion, AppliedAt: time.Now().UTC()}
	if err := tx.Save(&row).Error; err != nil {
		return fmt.Errorf("history: record schema version: %w", err)
	}
	log.Printf("history: schema version %d applied", schemaVersion)
	return nil
}

var newestFirst = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}
var oldestFirst = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}

// Recent returns up to limit entries, newest first. A non-positive limit
// uses the display limit. An empty store yields an empty slice.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = s.displayLimit
	}

	cacheKey := strconv.Itoa(limit)
	var cached []Entry
	if s.recent.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, limit)
	if err := db.Order(newestFirst).Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("history: list recent: %w", err)
	}

	s.recent.Set(ctx, cacheKey, entries)
	return entries, nil
}

// Put upserts entry by timestamp. When the store then holds more than the
// retention bound, the single oldest entry is deleted.
func (s *Store) Put(ctx context.Context, entry Entry) error {
	if entry.Timestamp <= 0 {
		return ErrInvalidEntry
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.UnixMilli(entry.Timestamp).UTC()
	}
	if len(entry.Results) == 0 {
		if err := entry.SetResults(nil); err != nil {
			return err
		}
	}

	db, err := s.ready(ctx)
	if err != nil {
		return err
	}

	var evicted int64
	err = db.Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "timestamp"}},
			UpdateAll: true,
		})
		if err := upsert.Create(&entry).Error; err != nil {
			return fmt.Errorf("history: put %d: %w", entry.Timestamp, err)
		}

		var count int64
		if err := tx.Model(&Entry{}).Count(&count).Error; err != nil {
			return fmt.Errorf("history: count: %w", err)
		}
		if count <= int64(s.retention) {
			return nil
		}

		var oldest Entry
		if err := tx.Select("timestamp").Order(oldestFirst).Take(&oldest).Error; err != nil {
			return fmt.Errorf("history: find oldest: %w", err)
		}
		if err := tx.Delete(&Entry{}, oldest.Timestamp).Error; err != nil {
			return fmt.Errorf("history: evict %d: %w", oldest.Timestamp, err)
		}
		evicted = oldest.Timestamp
		return nil
	})
	if err != nil {
		return err
	}

	if evicted != 0 {
		log.Printf("history: evicted entry %d beyond retention %d", evicted, s.retention)
	}
	s.recent.Invalidate(ctx)
	return nil
}

// Get returns a single entry.
func (s *Store) Get(ctx context.Context, timestamp int64) (Entry, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := db.Take(&entry, timestamp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("history: get %d: %w", timestamp, err)
	}
	return entry, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&Entry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return count, nil
}

// State reports the lifecycle state, mainly for diagnostics.
func (s *Store) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}
