package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
}

func New(url string) (Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &Redis{
		client: redis.NewClient(opts),
	}, nil
}

// NewScript wraps a Lua script for ScriptRun.
func NewScript(script string) *redis.Script {
	return redis.NewScript(script)
}

// ScriptRun implements Cache.
func (r *Redis) ScriptRun(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	conn := r.client.Conn()
	defer conn.Close()

	return script.Run(ctx, conn, keys, args...).Result()
}
