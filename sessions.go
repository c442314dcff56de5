package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Tutortoise/ovaquick/analysis"
	"github.com/Tutortoise/ovaquick/metric"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	SessionCookieName = "ovaquick_session"

	// DefaultSessionTTL Pool configuration
	DefaultSessionTTL  = time.Hour
	DefaultSessionSize = 10000
)

var ErrPoolClosed = errors.New("session pool is closed")

// SessionPool keeps one analysis controller per browser session. Entries expire after ttl
// without a request; every Acquire slides the expiry forward.
type SessionPool struct {
	cache         *ristretto.Cache
	ttl           time.Duration
	newController func() *analysis.Controller
	// SecureCookie marks the session cookie https-only.
	SecureCookie  bool

	mu      sync.Mutex
	closed  bool
	metrics *PoolMetrics
}

type PoolMetrics struct {
	mu       sync.RWMutex
	created  int64
	resumed  int64
	dropped  int64
	rejected int64
}

type PoolStats struct {
	Created     int64  `json:"sessions_created"`
	Resumed     int64  `json:"sessions_resumed"`
	Dropped     int64  `json:"sessions_dropped"`
	Rejected    int64  `json:"rejected_cookies"`
	KeysAdded   uint64 `json:"keys_added"`
	KeysEvicted uint64 `json:"keys_evicted"`
}

func NewSessionPool(size int64, ttl time.Duration, newController func() *analysis.Controller) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultSessionSize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * size,
		MaxCost:     size,
		BufferItems: 64,
		Metrics:     true,
		// cost counts sessions, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &SessionPool{
		cache:         cache,
		ttl:           ttl,
		newController: newController,
		metrics:       &PoolMetrics{},
	}, nil
}

// Acquire returns the controller bound to the request's session cookie, creating a new session
// (and setting the cookie on w) when the cookie is missing, malformed or expired.
func (p *SessionPool) Acquire(w http.ResponseWriter, r *http.Request) (*analysis.Controller, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	logger := zerolog.Ctx(r.Context())

	if c, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err != nil {
			p.record(func(m *PoolMetrics) { m.rejected++ })
			logger.Debug().Msg("ignoring malformed session cookie")
		} else if ctrl, ok := p.lookup(c.Value); ok {
			p.record(func(m *PoolMetrics) { m.resumed++ })
			metric.Incr(metric.SessionCount, []string{metric.TagAsString(metric.TagResult, "resumed")})
			return ctrl, nil
		}
	}

	return p.create(w, r)
}

func (p *SessionPool) lookup(id string) (*analysis.Controller, bool) {
	v, ok := p.cache.Get(id)
	if !ok {
		return nil, false
	}
	ctrl, ok := v.(*analysis.Controller)
	if !ok {
		return nil, false
	}
	p.cache.SetWithTTL(id, ctrl, 1, p.ttl)
	return ctrl, true
}

func (p *SessionPool) create(w http.ResponseWriter, r *http.Request) (*analysis.Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	id := uuid.NewString()
	ctrl := p.newController()
	if !p.cache.SetWithTTL(id, ctrl, 1, p.ttl) {
		// the controller still serves this request, the next one starts over
		p.record(func(m *PoolMetrics) { m.dropped++ })
		zerolog.Ctx(r.Context()).Warn().Str("session", id).Msg("session store rejected new session")
	}
	p.cache.Wait()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(p.ttl / time.Second),
		HttpOnly: true,
		Secure:   p.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	p.record(func(m *PoolMetrics) { m.created++ })
	metric.Incr(metric.SessionCount, []string{metric.TagAsString(metric.TagResult, "created")})
	zerolog.Ctx(r.Context()).Debug().Str("session", id).Msg("session created")
	return ctrl, nil
}

func (p *SessionPool) record(f func(m *PoolMetrics)) {
	p.metrics.mu.Lock()
	f(p.metrics)
	p.metrics.mu.Unlock()
}

func (p *SessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.cache.Clear()
	p.cache.Close()
}

func (p *SessionPool) GetMetrics() PoolStats {
	p.metrics.mu.RLock()
	stats := PoolStats{
		Created:  p.metrics.created,
		Resumed:  p.metrics.resumed,
		Dropped:  p.metrics.dropped,
		Rejected: p.metrics.rejected,
	}
	p.metrics.mu.RUnlock()

	if m := p.cache.Metrics; m != nil {
		stats.KeysAdded = m.KeysAdded()
		stats.KeysEvicted = m.KeysEvicted()
	}
	return stats
}
