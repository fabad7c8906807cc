package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Cache is the narrow redis surface the gateway needs: atomic script
// execution for the fixed-window counters.
type Cache interface {
	ScriptRun(ctx context.Context, script *redis.Script, keys []string,
		args ...any) (any, error)
}
