// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"math"
	"time"

	"axonflow/campaign-gateway/shared/logger"
)

const (
	// GlobalScope names the per-key bucket applied before any action bucket
	GlobalScope = "global"

	// DefaultGlobalLimit caps total requests per key per window
	DefaultGlobalLimit = 1000

	// DefaultWindow is the trailing window all buckets share
	DefaultWindow = time.Hour

	// DefaultActionLimit applies to actions without a specific default
	DefaultActionLimit = 100
)

// defaultActionLimits holds the static per-action caps. Key metadata may
// override any of these per key.
var defaultActionLimits = map[string]int{
	"campaigns.create": 10,
	"campaigns.update": 30,
	"campaigns.delete": 10,
	"campaigns.list":   100,
	"campaigns.get":    100,
	"ai.generate":      20,
	"assets.list":      100,
}

// Usage is one bucket's view of a take: whether it fit, how many entries
// the window holds, and the oldest entry still counted.
type Usage struct {
	Allowed  bool
	Count    int
	OldestAt time.Time
}

// Backend applies the sliding-window take for one bucket. now is passed
// explicitly so windows are reproducible under test.
type Backend interface {
	Take(ctx context.Context, bucket string, limit int, window time.Duration, now time.Time) (Usage, error)
}

// Result is the outcome of a full two-bucket check. Limit, Remaining and
// ResetAt describe the bucket that decided the outcome: the action bucket
// when allowed, the denying bucket otherwise. RetryAfter is non-zero only
// on denial.
type Result struct {
	Allowed    bool
	Scope      string
	Limit      int
	Remaining  int
	RetryAfter int
	ResetAt    time.Time
}

// Config tunes a Limiter. Zero values take the package defaults.
type Config struct {
	GlobalLimit  int
	Window       time.Duration
	ActionLimits map[string]int
}

// Limiter enforces the global-then-action rate policy over a Backend
type Limiter struct {
	backend      Backend
	fallback     *MemoryBackend
	globalLimit  int
	window       time.Duration
	actionLimits map[string]int
	log          *logger.Logger
}

// NewLimiter wires a Limiter around the given backend. A nil backend
// gets a fresh in-memory one; a non-memory backend additionally gets a
// memory fallback used when the primary errors.
func NewLimiter(backend Backend, cfg Config, log *logger.Logger) *Limiter {
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = DefaultGlobalLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if log == nil {
		log = logger.New("ratelimit")
	}

	limits := make(map[string]int, len(defaultActionLimits)+len(cfg.ActionLimits))
	for action, limit := range defaultActionLimits {
		limits[action] = limit
	}
	for action, limit := range cfg.ActionLimits {
		limits[action] = limit
	}

	fallback := NewMemoryBackend()
	if backend == nil {
		backend = fallback
	}
	if mem, ok := backend.(*MemoryBackend); ok {
		fallback = mem
	}

	return &Limiter{
		backend:      backend,
		fallback:     fallback,
		globalLimit:  cfg.GlobalLimit,
		window:       cfg.Window,
		actionLimits: limits,
		log:          log,
	}
}

// Check applies the global bucket, then the action bucket. overrides is
// the per-key limit map from key metadata; a "global" entry overrides the
// global cap, action-name entries override that action's cap.
func (l *Limiter) Check(ctx context.Context, keyID, action string, overrides map[string]int) Result {
	return l.checkAt(ctx, keyID, action, overrides, time.Now().UTC())
}

func (l *Limiter) checkAt(ctx context.Context, keyID, action string, overrides map[string]int, now time.Time) Result {
	globalLimit := l.globalLimit
	if v, ok := overrides[GlobalScope]; ok && v > 0 {
		globalLimit = v
	}

	global := l.take(ctx, keyID+":"+GlobalScope, globalLimit, now)
	if !global.Allowed {
		return l.result(GlobalScope, globalLimit, global, now)
	}

	actionLimit := l.actionLimit(action, overrides)
	usage := l.take(ctx, keyID+":"+action, actionLimit, now)
	return l.result(action, actionLimit, usage, now)
}

// take runs one bucket against the backend, dropping to the in-memory
// fallback when the backend errors so limiting degrades rather than
// disappears.
func (l *Limiter) take(ctx context.Context, bucket string, limit int, now time.Time) Usage {
	usage, err := l.backend.Take(ctx, bucket, limit, l.window, now)
	if err == nil {
		return usage
	}

	l.log.Warn("", "", "Rate limit backend failed, using in-memory fallback", map[string]interface{}{
		"bucket": bucket,
		"error":  err.Error(),
	})

	usage, _ = l.fallback.Take(ctx, bucket, limit, l.window, now)
	return usage
}

func (l *Limiter) actionLimit(action string, overrides map[string]int) int {
	if v, ok := overrides[action]; ok && v > 0 {
		return v
	}
	if v, ok := l.actionLimits[action]; ok && v > 0 {
		return v
	}
	return DefaultActionLimit
}

func (l *Limiter) result(scope string, limit int, usage Usage, now time.Time) Result {
	oldest := usage.OldestAt
	if oldest.IsZero() {
		oldest = now
	}
	resetAt := oldest.Add(l.window)

	res := Result{
		Allowed: usage.Allowed,
		Scope:   scope,
		Limit:   limit,
		ResetAt: resetAt,
	}

	if usage.Allowed {
		if remaining := limit - usage.Count; remaining > 0 {
			res.Remaining = remaining
		}
		return res
	}

	retryAfter := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	res.RetryAfter = retryAfter
	return res
}

// Window returns the configured trailing window
func (l *Limiter) Window() time.Duration {
	return l.window
}
