package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

func (l *ipLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = v
	}
	v.seen = now
	// чистим давно неактивных, чтобы карта не росла бесконечно
	if len(l.limiters) > 10000 {
		for k, x := range l.limiters {
			if now.Sub(x.seen) > 10*time.Minute {
				delete(l.limiters, k)
			}
		}
	}
	return v.lim
}

// RateLimit allows perMinute requests per client IP with an equal burst.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := &ipLimiter{
		limiters: map[string]*visitor{},
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
	}
	return func(c *gin.Context) {
		if !l.get(c.ClientIP(), time.Now()).Allow() {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": "error", "message": "Too many requests"})
			return
		}
		c.Next()
	}
}
