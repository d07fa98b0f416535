package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// The API's traffic is naturally sparse: one check-in a day, a handful
// of list/profile reads, and webhook deliveries that back off on their
// own. 2 req/s sustained with a burst of 20 absorbs an app launch
// fetching challenges, profile and notifications at once, and still
// shuts down scripted check-in hammering well before the database sees
// it.
const (
	requestsPerSecond = 2
	burstSize         = 20
	visitorIdleExpiry = 5 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex
)

// RateLimitMiddleware throttles each client IP.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		}

		if !limiterFor(ip).Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func limiterFor(ip string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	v, ok := visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(requestsPerSecond, burstSize)}
		visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// CleanupVisitors drops limiters for IPs idle past the expiry. Run it in
// its own goroutine.
func CleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		mu.Lock()
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > visitorIdleExpiry {
				delete(visitors, ip)
			}
		}
		mu.Unlock()
	}
}
