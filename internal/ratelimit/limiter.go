// Package ratelimit provides per-key token bucket rate limiting for MCP tools.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by every LimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit is a token bucket shape: Rate tokens per second, at most Burst held.
type Limit struct {
	Rate  float64
	Burst int
}

// PerMinute builds a Limit from a per-minute count.
func PerMinute(n float64, burst int) Limit {
	return Limit{Rate: n / 60.0, Burst: burst}
}

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket, starting full. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	limit   Limit
	buckets map[string]*bucket
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given shape.
func NewLimiter(limit Limit) *Limiter {
	return &Limiter{
		limit:   limit,
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
}

// Allow reports whether a request for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve is Allow that also reports, on rejection, how long until a token
// is available. A zero-rate limiter never refills and reports -1.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.limit.Burst), lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(l.limit.Burst), b.tokens+l.limit.Rate*elapsed)
		b.lastCheck = now
	}

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	if l.limit.Rate <= 0 {
		return false, -1
	}
	wait := (1.0 - b.tokens) / l.limit.Rate
	return false, time.Duration(math.Ceil(wait * float64(time.Second)))
}

// LimitError is returned when a tool call is rejected.
type LimitError struct {
	Tool       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Tool, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Tool)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// DefaultLimits are the per-tool limits of the MCP server. Reads of the
// live state are not limited; writes and whole-network work are.
var DefaultLimits = map[string]Limit{
	"baynet_set_node_value": PerMinute(120, 20),
	"baynet_set_scenario":   PerMinute(60, 10),
	"baynet_load_scenario":  PerMinute(30, 5),
	"baynet_toggle_lock":    PerMinute(60, 10),
	"baynet_calibrate":      PerMinute(60, 10),
	"baynet_auto_sim":       PerMinute(60, 10),
	"baynet_reset":          PerMinute(10, 3),
	"baynet_analyze":        PerMinute(20, 5),
	"baynet_explain":        PerMinute(60, 10),
	"baynet_graph":          PerMinute(30, 5),
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates one limiter per entry of limits, or of
// DefaultLimits when limits is nil.
func NewToolLimiters(limits map[string]Limit) ToolLimiters {
	if limits == nil {
		limits = DefaultLimits
	}
	out := make(ToolLimiters, len(limits))
	for tool, limit := range limits {
		out[tool] = NewLimiter(limit)
	}
	return out
}

// Check returns nil if the call is allowed, or a *LimitError.
// Tools without a configured limiter are always allowed.
func (tl ToolLimiters) Check(tool string) error {
	limiter, ok := tl[tool]
	if !ok {
		return nil
	}
	if ok, wait := limiter.Reserve(tool); !ok {
		return &LimitError{Tool: tool, RetryAfter: wait}
	}
	return nil
}
