package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 300 * time.Millisecond

// JSON stores JSON-encoded values under a key prefix with a fixed TTL.
// Every method is safe on a nil *JSON and failures are only logged: a cache
// miss is always an acceptable answer.
type JSON struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewJSON returns nil when client is nil.
func NewJSON(client *redis.Client, prefix string, ttl time.Duration) *JSON {
	if client == nil {
		return nil
	}
	return &JSON{client: client, prefix: prefix, ttl: ttl, timeout: defaultOpTimeout}
}

// opContext bounds a cache call unless ctx already expires sooner.
func (j *JSON) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), j.timeout)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= j.timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, j.timeout)
}

// key prefixes name with the cache namespace.
func (j *JSON) key(name string) string {
	return j.prefix + name
}

// Get decodes the cached value into dst and reports whether it was found.
func (j *JSON) Get(ctx context.Context, name string, dst any) bool {
	if j == nil || j.client == nil {
		return false
	}
	ctx, cancel := j.opContext(ctx)
	defer cancel()

	data, err := j.client.Get(ctx, j.key(name)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache: get %s failed: %v", j.key(name), err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Printf("cache: decode %s failed: %v", j.key(name), err)
		return false
	}
	return true
}

// Set stores value for the configured TTL.
func (j *JSON) Set(ctx context.Context, name string, value any) {
	if j == nil || j.client == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache: marshal %s failed: %v", j.key(name), err)
		return
	}
	ctx, cancel := j.opContext(ctx)
	defer cancel()

	if err := j.client.Set(ctx, j.key(name), payload, j.ttl).Err(); err != nil {
		log.Printf("cache: store %s failed: %v", j.key(name), err)
	}
}

// Invalidate removes every key under the prefix.
func (j *JSON) Invalidate(ctx context.Context) {
	if j == nil || j.client == nil {
		return
	}
	ctx, cancel := j.opContext(ctx)
	defer cancel()

	var keys []string
	iter := j.client.Scan(ctx, 0, j.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: scan %s* failed: %v", j.prefix, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := j.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache: invalidate %s* failed: %v", j.prefix, err)
	}
}
