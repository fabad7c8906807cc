// Package ratelimit implements a fixed-window per-client request limiter
// backed by redis, applied as plain HTTP middleware in front of the API.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"modgate/internal/pkg/hash"
	rediscache "modgate/internal/pkg/redis"
)

// windowScript atomically bumps the window counter, arming the expiry on
// first hit, and reports the counter plus remaining window.
var windowScript = rediscache.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// Config holds configuration for the limiter.
type Config struct {
	Max       int           // requests allowed per window per client
	Window    time.Duration // window length
	KeyPrefix string
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Max:       10,
		Window:    time.Minute,
		KeyPrefix: "modgate:ratelimit:",
	}
}

// Limiter counts requests per client id in fixed windows. If redis is
// unreachable it degrades open: moderation availability wins over limiting.
type Limiter struct {
	cache  rediscache.Cache
	config Config
	log    *log.Helper
}

// New creates a new Limiter.
func New(cache rediscache.Cache, config Config, logger log.Logger) *Limiter {
	def := DefaultConfig()
	if config.Max <= 0 {
		config.Max = def.Max
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	return &Limiter{
		cache:  cache,
		config: config,
		log:    log.NewHelper(logger),
	}
}

// Allow reports whether clientID may proceed, and if not, how long until
// the current window resets.
func (l *Limiter) Allow(ctx context.Context, clientID string) (bool, time.Duration) {
	key := l.config.KeyPrefix + hash.FastKey(clientID)
	res, err := l.cache.ScriptRun(ctx, windowScript, []string{key}, l.config.Window.Milliseconds())
	if err != nil {
		l.log.Warnf("rate limiter degraded open: %v", err)
		return true, 0
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		l.log.Warnf("rate limiter got unexpected reply %T", res)
		return true, 0
	}
	count, _ := vals[0].(int64)
	ttlMillis, _ := vals[1].(int64)
	if int(count) > l.config.Max {
		return false, time.Duration(ttlMillis) * time.Millisecond
	}
	return true, 0
}

type exceededBody struct {
	Code       int    `json:"code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware wraps an http.Handler with per-IP limiting. Health checks are
// exempt so probes never get throttled.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		allowed, retryAfter := l.Allow(r.Context(), ip)
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		seconds := int(retryAfter.Seconds())
		if retryAfter > time.Duration(seconds)*time.Second {
			seconds++
		}
		l.log.Warnf("rate limit exceeded: ip=%s path=%s", ip, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(exceededBody{
			Code:       http.StatusTooManyRequests,
			Error:      "Too Many Requests",
			Message:    fmt.Sprintf("Rate limit exceeded, retry in %d seconds", seconds),
			RetryAfter: seconds,
		})
	})
}

// clientIP resolves the caller address, trusting proxy headers first.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
