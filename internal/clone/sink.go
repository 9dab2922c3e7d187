package clone

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressSink receives a snapshot whenever an operation advances.
type ProgressSink interface {
	Publish(ctx context.Context, s Snapshot) error
}

const (
	redisKeyPrefix = "tgtoolkit:clone:"
	redisTTL       = 24 * time.Hour
)

// redisSetter is the subset of *redis.Client the sink uses.
type redisSetter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisSink mirrors snapshots to Redis so other processes can follow a
// clone. Keys expire a day after the last update.
type RedisSink struct {
	client redisSetter
}

func NewRedisSink(c redisSetter) *RedisSink {
	return &RedisSink{client: c}
}

func (s *RedisSink) Publish(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+snap.OperationID, b, redisTTL).Err()
}
