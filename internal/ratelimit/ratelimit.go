package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter — фиксированное окно на ключ. Ключи считаются независимо,
// по истечении окна счетчик сбрасывается.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	buckets map[string]*bucket

	// подменяется в тестах
	now func() time.Time
}

type bucket struct {
	start time.Time
	count int
}

func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take пытается занять слот для ключа. Возвращает успех и число
// оставшихся слотов в текущем окне.
func (l *Limiter) Take(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		b = &bucket{start: now}
		l.buckets[key] = b
	}

	if b.count >= l.max {
		return false, 0
	}
	b.count++
	return true, l.max - b.count
}

// Middleware ограничивает обработчик по адресу клиента, на отказ
// отвечает 429 со структурированной ошибкой.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		ok, remaining := l.Take(host)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"reason": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
