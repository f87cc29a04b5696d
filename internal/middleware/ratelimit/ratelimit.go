// Package ratelimit applies a fixed-window request limit per client address.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
)

type Config struct {
	Requests int
	Window   time.Duration
	// StaleAfter drops clients that have been quiet this long.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{Requests: 20, Window: time.Minute, StaleAfter: 10 * time.Minute}
}

type Limiter struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*window

	hits int64
}

type window struct {
	start    time.Time
	requests int
}

func NewLimiter(cfg Config, logger *log.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Limiter{
		cfg:     cfg,
		logger:  logger.WithComponent(log.ComponentRateLimit),
		now:     time.Now,
		clients: make(map[string]*window),
	}
}

// Allow counts one request from key and reports whether it is within limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.clients[key] = &window{start: now, requests: 1}
		return true
	}
	w.requests++
	if w.requests > l.cfg.Requests {
		atomic.AddInt64(&l.hits, 1)
		return false
	}
	return true
}

// Run prunes stale clients until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.StaleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *Limiter) prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.StaleAfter)
	n := 0
	for key, w := range l.clients {
		if w.start.Before(cutoff) {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Hits is the number of rejected requests.
func (l *Limiter) Hits() int64 {
	return atomic.LoadInt64(&l.hits)
}

// Middleware rejects requests over the limit with 429. onLimit may replace
// the default response.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.cfg.Window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)
			if l.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			l.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, ip, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", retryAfter)
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
