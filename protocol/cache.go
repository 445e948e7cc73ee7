package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

const workflowKeyPrefix = "cad:workflow:"

// RedisCache stores assembled workflows in redis as JSON
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache returns a cache whose entries expire after ttl
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClient connects to the server at url, either a redis:// URL or host:port
func NewRedisClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts)
}

// Get implements WorkflowCache
func (c *RedisCache) Get(ctx context.Context, callTypeID string) (*models.ProtocolWorkflow, bool) {
	b, err := c.client.Get(ctx, workflowKeyPrefix+callTypeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logging.FromContext(ctx).Warnw("workflow cache read failed", "callTypeID", callTypeID, "error", err)
		return nil, false
	}
	wf := &models.ProtocolWorkflow{}
	if err := json.Unmarshal(b, wf); err != nil {
		logging.FromContext(ctx).Warnw("workflow cache entry unreadable", "callTypeID", callTypeID, "error", err)
		return nil, false
	}
	return wf, true
}

// Set implements WorkflowCache
func (c *RedisCache) Set(ctx context.Context, workflow *models.ProtocolWorkflow) {
	b, err := json.Marshal(workflow)
	if err != nil {
		logging.FromContext(ctx).Warnw("workflow cache encode failed", "callTypeID", workflow.CallTypeID, "error", err)
		return
	}
	if err := c.client.Set(ctx, workflowKeyPrefix+workflow.CallTypeID, b, c.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warnw("workflow cache write failed", "callTypeID", workflow.CallTypeID, "error", err)
	}
}

// Invalidate drops the cached workflow of a call type
func (c *RedisCache) Invalidate(ctx context.Context, callTypeID string) error {
	return c.client.Del(ctx, workflowKeyPrefix+callTypeID).Err()
}
