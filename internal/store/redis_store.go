package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes for storage
	imageKeyPrefix = "honchkrow:image:"
	imageSeqKey    = "honchkrow:image:seq"
)

// Redis implements ImageStore backed by Redis. Unlike the memory backend it
// can apply a TTL to stored images, which gives long-running deployments an
// eviction story.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed image store. A zero ttl stores images
// without expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
	}
}

// Put allocates the next sequential name via INCR and stores the bytes.
// INCR makes allocate-and-insert safe across processes sharing the store.
func (r *Redis) Put(ctx context.Context, data []byte) (string, error) {
	seq, err := r.client.Incr(ctx, imageSeqKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate image name: %w", err)
	}

	// INCR starts at 1; names start at image-0.png
	name := imageName(seq - 1)

	if err := r.client.Set(ctx, imageKeyPrefix+name, data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store image %s: %w", name, err)
	}

	return name, nil
}

// Get retrieves previously stored bytes
func (r *Redis) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, imageKeyPrefix+name).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", name, err)
	}
	return data, nil
}

// Close closes the underlying Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// Health pings the Redis backend
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
