package ratelimit

import (
	"context"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/models"
)

// Decision is the outcome of one admission check. Remaining counts reflect
// the state after the request was admitted, or the exhausted window when it
// was not.
type Decision struct {
	Allowed         bool
	LimitMinute     int
	LimitHour       int
	RemainingMinute int
	RemainingHour   int
}

// Backend evaluates one request against both sliding windows. A rejected
// request must not consume a slot in either window.
type Backend interface {
	Admit(ctx context.Context, clientID string, now time.Time) (Decision, error)
}

// Limiter fronts a primary backend with an in-process fallback. When the
// primary returns an error the check is retried on the fallback, so a Redis
// outage degrades to per-instance limiting instead of an outage of our own.
type Limiter struct {
	cfg      models.RateLimitConfig
	primary  Backend
	fallback *MemoryBackend
	memory   *MemoryBackend
	now      func() time.Time
}

// New builds a limiter from config. With the memory backend there is no
// fallback tier; with Redis a memory backend is kept warm behind it.
func New(cfg models.RateLimitConfig) (*Limiter, error) {
	l := &Limiter{
		cfg: cfg,
		now: time.Now,
	}

	mem := NewMemoryBackend(cfg)
	l.memory = mem

	switch cfg.Backend {
	case models.RateLimitBackendRedis:
		rb, err := NewRedisBackend(cfg)
		if err != nil {
			return nil, err
		}
		l.primary = rb
		l.fallback = mem
	default:
		l.primary = mem
	}

	return l, nil
}

// Admit checks both windows for clientID and records the request when it is
// admitted.
func (l *Limiter) Admit(ctx context.Context, clientID string) (Decision, error) {
	if !l.cfg.Enabled {
		return Decision{
			Allowed:         true,
			LimitMinute:     l.cfg.PerMinute,
			LimitHour:       l.cfg.PerHour,
			RemainingMinute: l.cfg.PerMinute,
			RemainingHour:   l.cfg.PerHour,
		}, nil
	}

	now := l.now()

	decision, err := l.primary.Admit(ctx, clientID, now)
	if err == nil {
		return decision, nil
	}
	if l.fallback == nil {
		return Decision{}, err
	}

	fiberlog.Warnf("rate limit backend unavailable, using in-process fallback: %v", err)
	return l.fallback.Admit(ctx, clientID, now)
}

// Ping reports shared-store connectivity. It returns nil for the memory
// backend, which has no external dependency.
func (l *Limiter) Ping(ctx context.Context) error {
	if rb, ok := l.primary.(*RedisBackend); ok {
		return rb.Ping(ctx)
	}
	return nil
}

// UsesSharedStore reports whether admission state lives outside the
// process.
func (l *Limiter) UsesSharedStore() bool {
	_, ok := l.primary.(*RedisBackend)
	return ok
}

// Start launches background maintenance (idle entry sweeping).
func (l *Limiter) Start() {
	l.memory.Start()
}

// Stop halts background maintenance.
func (l *Limiter) Stop() {
	l.memory.Stop()
}
