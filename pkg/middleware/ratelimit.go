package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor tracks a rate limiter per client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore manages per-IP rate limiters with automatic cleanup of stale
// entries.
type visitorStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      int
	burst    int
	ttl      time.Duration
}

func newVisitorStore(rps, burst int, ttl time.Duration) *visitorStore {
	s := &visitorStore{
		visitors: make(map[string]*visitor),
		rps:      rps,
		burst:    burst,
		ttl:      ttl,
	}
	go s.cleanupLoop()
	return s
}

// getVisitor returns (or creates) a rate limiter for the given IP and updates
// lastSeen.
func (s *visitorStore) getVisitor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(s.rps), s.burst)
		s.visitors[ip] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (s *visitorStore) cleanupLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-s.ttl)
		s.mu.Lock()
		for ip, v := range s.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(s.visitors, ip)
			}
		}
		s.mu.Unlock()
	}
}

// RateLimit returns middleware that limits each client IP to rps requests per
// second with the given burst. Rejected requests get a 429.
func RateLimit(rps, burst int) func(http.Handler) http.Handler {
	store := newVisitorStore(rps, burst, 3*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !store.getVisitor(ip).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address, stripping the port when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
