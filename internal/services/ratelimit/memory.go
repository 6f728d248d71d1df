package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/modelrelay/modelrelay/internal/models"
)

type clientWindows struct {
	mu     sync.Mutex
	minute []time.Time
	hour   []time.Time
}

// MemoryBackend keeps per-client request timestamps in process memory.
// Entries are pruned lazily on each check and swept periodically so idle
// clients do not accumulate.
type MemoryBackend struct {
	mu      sync.Mutex
	clients map[string]*clientWindows

	perMinute     int
	perHour       int
	sweepInterval time.Duration

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func NewMemoryBackend(cfg models.RateLimitConfig) *MemoryBackend {
	interval := time.Duration(cfg.SweepIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &MemoryBackend{
		clients:       make(map[string]*clientWindows),
		perMinute:     cfg.PerMinute,
		perHour:       cfg.PerHour,
		sweepInterval: interval,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
}

func (b *MemoryBackend) Admit(_ context.Context, clientID string, now time.Time) (Decision, error) {
	c := b.client(clientID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.minute = prune(c.minute, now.Add(-time.Minute))
	c.hour = prune(c.hour, now.Add(-time.Hour))

	d := Decision{
		LimitMinute: b.perMinute,
		LimitHour:   b.perHour,
	}

	minuteFull := b.perMinute > 0 && len(c.minute) >= b.perMinute
	hourFull := b.perHour > 0 && len(c.hour) >= b.perHour
	if minuteFull || hourFull {
		d.RemainingMinute = remaining(b.perMinute, len(c.minute))
		d.RemainingHour = remaining(b.perHour, len(c.hour))
		return d, nil
	}

	c.minute = append(c.minute, now)
	c.hour = append(c.hour, now)

	d.Allowed = true
	d.RemainingMinute = remaining(b.perMinute, len(c.minute))
	d.RemainingHour = remaining(b.perHour, len(c.hour))
	return d, nil
}

func (b *MemoryBackend) client(id string) *clientWindows {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[id]
	if !ok {
		c = &clientWindows{}
		b.clients[id] = c
	}
	return c
}

// Start launches the background sweep of idle client entries.
func (b *MemoryBackend) Start() {
	go b.sweep()
}

// Stop halts the background sweep. Safe to call more than once.
func (b *MemoryBackend) Stop() {
	b.once.Do(func() { close(b.stop) })
}

func (b *MemoryBackend) sweep() {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.sweepOnce(b.now())
		}
	}
}

func (b *MemoryBackend) sweepOnce(now time.Time) {
	b.mu.Lock()
	snapshot := make(map[string]*clientWindows, len(b.clients))
	for id, c := range b.clients {
		snapshot[id] = c
	}
	b.mu.Unlock()

	minuteAgo := now.Add(-time.Minute)
	hourAgo := now.Add(-time.Hour)
	for id, c := range snapshot {
		c.mu.Lock()
		c.minute = prune(c.minute, minuteAgo)
		c.hour = prune(c.hour, hourAgo)
		empty := len(c.hour) == 0
		c.mu.Unlock()
		if empty {
			b.mu.Lock()
			// Only drop the entry if nothing was admitted since we looked.
			c.mu.Lock()
			if len(c.hour) == 0 && b.clients[id] == c {
				delete(b.clients, id)
			}
			c.mu.Unlock()
			b.mu.Unlock()
		}
	}
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return 0
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
