// rate_limit.go
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// Message es el texto del 429.
	Message string
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{cfg: cfg, clients: make(map[string]*clientLimiter), now: time.Now}
}

func (s *limiterSet) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cl, ok := s.clients[ip]; ok {
		cl.lastSeen = now
		return cl.limiter
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)
	s.clients[ip] = &clientLimiter{limiter: l, lastSeen: now}
	return l
}

// sweep borra los clientes que no aparecen hace más de idle.
func (s *limiterSet) sweep(idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	for ip, cl := range s.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(s.clients, ip)
		}
	}
}

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = 10 * time.Minute
)

// run limpia clientes inactivos hasta que ctx termine.
func (s *limiterSet) run(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(idle)
		}
	}
}

// RateLimiter limita por IP con token bucket. Se usa uno general y otro más
// estricto para /auth. La limpieza de clientes inactivos corre hasta que ctx
// se cancele.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Message == "" {
		cfg.Message = "demasiadas solicitudes, intenta más tarde"
	}
	set := newLimiterSet(cfg)
	go set.run(ctx, sweepEvery, idleAfter)

	return func(c *gin.Context) {
		limiter := set.get(c.ClientIP())

		reservation := limiter.Reserve()
		if !reservation.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": cfg.Message})
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": cfg.Message})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}
