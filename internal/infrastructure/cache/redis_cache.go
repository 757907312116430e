package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisCache holds a universal Redis client plus a redsync factory for
// cross-replica locks.
type RedisCache struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}

	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("ignoring non-zero DB when using Redis Cluster configuration")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
	}, nil
}

// buildUniversalOptions accepts either a comma-separated address list or one
// or more redis:// URLs and folds them into universal client options.
func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	parts := strings.Split(raw, ",")
	opts := &redis.UniversalOptions{}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "://") {
			parsed, err := redis.ParseURL(part)
			if err != nil {
				return nil, err
			}

			opts.Addrs = append(opts.Addrs, parsed.Addr)

			if opts.Username == "" {
				opts.Username = parsed.Username
			}
			if opts.Password == "" {
				opts.Password = parsed.Password
			}
			if opts.DB == 0 {
				opts.DB = parsed.DB
			}
			if opts.TLSConfig == nil {
				opts.TLSConfig = parsed.TLSConfig
			}
			if opts.ReadTimeout == 0 {
				opts.ReadTimeout = parsed.ReadTimeout
			}
			if opts.WriteTimeout == 0 {
				opts.WriteTimeout = parsed.WriteTimeout
			}
			if opts.DialTimeout == 0 {
				opts.DialTimeout = parsed.DialTimeout
			}
			if opts.PoolSize == 0 {
				opts.PoolSize = parsed.PoolSize
			}
			if opts.MinIdleConns == 0 {
				opts.MinIdleConns = parsed.MinIdleConns
			}
		} else {
			opts.Addrs = append(opts.Addrs, part)
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses provided")
	}

	return opts, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// WithLock runs fn while holding a distributed mutex. Used to serialize
// startup migrations across replicas.
func WithLock(cache *RedisCache, lockName string, ttl time.Duration, fn func() error) error {
	mutex := cache.rs.NewMutex(lockName, redsync.WithExpiry(ttl))

	if err := mutex.Lock(); err != nil {
		return err
	}
	defer func() {
		if _, err := mutex.Unlock(); err != nil {
			log.Error().Err(err).Msg("failed to unlock mutex")
		}
	}()

	return fn()
}
