package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HeaderAPIKey identifies a client when present. It is masked in access logs.
const HeaderAPIKey = "X-API-Key"

// keyFunc maps a request to the identity whose bucket it draws from.
type keyFunc func(*gin.Context) string

// KeyByAPIKeyOrIP keys buckets by X-API-Key, falling back to the client IP.
// The prefixes keep the two namespaces apart.
func KeyByAPIKeyOrIP() keyFunc {
	return func(c *gin.Context) string {
		if k := c.GetHeader(HeaderAPIKey); k != "" {
			return "key:" + k
		}
		return "ip:" + c.ClientIP()
	}
}

// WeightedCost charges weight tokens for requests matched by heavy and one
// token otherwise. Import uploads and confirmations parse or write a whole
// batch, so they are worth several list reads.
func WeightedCost(weight int, heavy func(*gin.Context) bool) func(*gin.Context) int {
	return func(c *gin.Context) int {
		if c.Request.Method != http.MethodGet && heavy(c) {
			return weight
		}
		return 1
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	// RPS is the refill rate. Zero disables limiting.
	RPS float64
	// Burst is the bucket size; values <= 0 become 1.
	Burst int
	// Key defaults to KeyByAPIKeyOrIP.
	Key keyFunc
	// Cost returns the tokens a request consumes, capped at Burst.
	Cost func(*gin.Context) int
	// Skip exempts requests such as health probes and scrapes.
	Skip func(*gin.Context) bool
	// IdleTTL evicts buckets unused for this long. Defaults to 10m.
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per client identity.
type RateLimiter struct {
	opts RateLimitOptions
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter from opts, filling in defaults.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Key == nil {
		opts.Key = KeyByAPIKeyOrIP()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		opts:      opts,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// limiterFor returns the bucket for key. Idle buckets are swept at most once
// per IdleTTL, before the lookup so a stale bucket is replaced rather than
// revived.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.opts.IdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (rl *RateLimiter) cost(c *gin.Context) int {
	if rl.opts.Cost == nil {
		return 1
	}
	n := rl.opts.Cost(c)
	if n < 1 {
		return 1
	}
	return min(n, rl.opts.Burst)
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a stored confirmation, which is served without spending tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. A refused request gets 429 with a Retry-After
// computed from the bucket's refill time.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.opts.RPS <= 0 || IsRateBypass(c) || (rl.opts.Skip != nil && rl.opts.Skip(c)) {
			c.Next()
			return
		}

		now := rl.now()
		n := rl.cost(c)
		res := rl.limiterFor(rl.opts.Key(c), now).ReserveN(now, n)
		delay := res.DelayFrom(now)
		if delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		LoggerFrom(c).Warn().Int("cost", n).Dur("retry_after", delay).Msg("rate limited")
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		abortError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}
