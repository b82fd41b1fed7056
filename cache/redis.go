package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisAddr = "localhost:6379"

var (
	redisOnce   sync.Once
	redisClient *redis.Client
	redisErr    error
)

// optionsFromEnv reads REDIS_ADDR, REDIS_PASSWORD and REDIS_DB.
func optionsFromEnv() (*redis.Options, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		addr = defaultRedisAddr
	}
	db := 0
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("cache: invalid REDIS_DB value %q", raw)
		}
		db = parsed
	}
	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

// GetRedisClient returns the process-wide client. The first call pings the
// server; an unreachable server is remembered as an error so callers fall
// back to running without a cache.
func GetRedisClient() (*redis.Client, error) {
	redisOnce.Do(func() {
		opts, err := optionsFromEnv()
		if err != nil {
			redisErr = err
			return
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			redisErr = fmt.Errorf("cache: ping redis %s failed: %w", opts.Addr, err)
			_ = client.Close()
			return
		}
		redisClient = client
	})
	return redisClient, redisErr
}

// Close releases the shared connection pool.
func Close() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}
