package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdle = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Local keeps one token bucket per key. Buckets untouched for longer than the
// idle period are evicted on a background sweep.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*entry
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// LocalConfig describes a token bucket: Burst requests at once, refilled at
// one token per Every.
type LocalConfig struct {
	Every time.Duration
	Burst int
	Idle  time.Duration
}

func NewLocal(cfg LocalConfig) *Local {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Idle <= 0 {
		cfg.Idle = defaultIdle
	}
	limit := rate.Inf
	if cfg.Every > 0 {
		limit = rate.Every(cfg.Every)
	}
	return &Local{
		buckets: make(map[string]*entry),
		limit:   limit,
		burst:   cfg.Burst,
		idle:    cfg.Idle,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func (l *Local) Allow(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.bucket(key).AllowN(l.now(), 1) {
		return ErrLimited
	}
	return nil
}

func (l *Local) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = e
	}
	e.lastSeen = l.now()
	return e.limiter
}

// StartCleanup runs the eviction sweep every interval until Close.
func (l *Local) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = l.idle
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Sweep drops buckets idle for longer than the configured period and reports
// how many were removed.
func (l *Local) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for k, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len is the number of live buckets.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Local) Close() {
	l.once.Do(func() { close(l.stop) })
}
