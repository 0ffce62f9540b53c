// Package ratelimit throttles the public profile endpoints per client.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// Counters are bucketed per minute. The script increments only while the
// bucket is under the limit, so a denied request does not extend the window.
const windowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, newVal}
`

// Limiter allows Limit requests per client per minute and scope.
type Limiter interface {
	Allow(ctx context.Context, scope, client string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisLimiter shares counters across every server instance.
type RedisLimiter struct {
	redis  *redis.Client
	script *redis.Script
	limit  int
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per minute.
func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		script: redis.NewScript(windowLuaScript),
		limit:  limit,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope, client string) (bool, time.Duration, error) {
	now := l.now()
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, client, now.Unix()/60)

	res, err := l.script.Run(ctx, l.redis, []string{key}, l.limit, 120).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if allowed, _ := res[0].(int64); allowed == 1 {
		return true, 0, nil
	}
	return false, untilNextMinute(now), nil
}

// MemoryLimiter is the single-instance fallback when Redis is not
// configured.
type MemoryLimiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	minute  int64
	buckets map[string]int
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, now: time.Now, buckets: map[string]int{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, scope, client string) (bool, time.Duration, error) {
	now := l.now()
	minute := now.Unix() / 60

	l.mu.Lock()
	defer l.mu.Unlock()
	if minute != l.minute {
		l.minute = minute
		l.buckets = map[string]int{}
	}
	key := scope + ":" + client
	if l.buckets[key] >= l.limit {
		return false, untilNextMinute(now), nil
	}
	l.buckets[key]++
	return true, 0, nil
}

func untilNextMinute(now time.Time) time.Duration {
	return time.Duration(60-now.Second()) * time.Second
}

// Middleware rejects requests over the limit with 429. Limiter errors let
// the request through. A nil clients keys every request by its TCP peer.
func Middleware(l Limiter, scope string, clients *ClientResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retry, err := l.Allow(r.Context(), scope, clients.ClientIP(r))
			if err != nil {
				logger.Warn("ratelimit: check failed, allowing", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				httputil.TooManyRequests(w, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientResolver decides which address a request is counted against.
// X-Forwarded-For is only read when the TCP peer is a trusted proxy.
type ClientResolver struct {
	trusted []*net.IPNet
}

// NewClientResolver parses proxies, each an IP or a CIDR.
func NewClientResolver(proxies []string) (*ClientResolver, error) {
	c := &ClientResolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			c.trusted = append(c.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		c.trusted = append(c.trusted, n)
	}
	return c, nil
}

// ClientIP returns the TCP peer, or, behind trusted proxies, the nearest
// X-Forwarded-For hop that is not itself a trusted proxy.
func (c *ClientResolver) ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if c == nil || !c.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if net.ParseIP(hop) == nil {
			return peer
		}
		if !c.isTrusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (c *ClientResolver) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
