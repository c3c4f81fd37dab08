package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// window счетчик запросов одного клиента в текущем окне
type window struct {
	start time.Time
	count int
}

// RateLimiter ограничивает число запросов с одного IP в фиксированном окне.
type RateLimiter struct {
	clients map[string]*window
	now     func() time.Time
	limit   int
	period  time.Duration
	mu      sync.Mutex
}

// NewRateLimiter создает limiter на limit запросов за period
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*window),
		now:     time.Now,
		limit:   limit,
		period:  period,
	}
}

// Allow учитывает запрос клиента key и сообщает, укладывается ли он в лимит
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	win, ok := rl.clients[key]
	if !ok || now.Sub(win.start) >= rl.period {
		win = &window{start: now}
		rl.clients[key] = win
	}
	if win.count >= rl.limit {
		return false
	}
	win.count++
	return true
}

// prune удаляет истекшие окна
func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, win := range rl.clients {
		if now.Sub(win.start) >= rl.period {
			delete(rl.clients, key)
		}
	}
}

// Run periodically drops expired windows until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

// Middleware отвечает 429, если клиент превысил лимит
func (rl *RateLimiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.period.Seconds())))
				writeError(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP возвращает адрес клиента с учетом прокси
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
