// Package admission gates work before any session or socket state is
// touched: a per-IP sliding-window request counter, a concurrent
// connection cap, and a session creation cap. All checks are
// synchronous; a rejection carries the suggested retry delay.
package admission

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type Limits struct {
	RequestWindow    time.Duration
	MaxRequests      int
	MaxConnsPerIP    int
	MaxSessionsPerIP int
}

type windowEntry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

type Controller struct {
	limits Limits

	// Window entries expire with the window itself, so a fresh request
	// after the deadline starts a new counter.
	windows *ttlcache.Cache[string, *windowEntry]

	mu    sync.Mutex
	conns map[string]int
}

func NewController(limits Limits) *Controller {
	windows := ttlcache.New(
		ttlcache.WithTTL[string, *windowEntry](limits.RequestWindow),
		ttlcache.WithDisableTouchOnHit[string, *windowEntry](),
	)
	go windows.Start()

	return &Controller{
		limits:  limits,
		windows: windows,
		conns:   make(map[string]int),
	}
}

// CheckRequestRate counts one request from the given IP against the
// sliding window and rejects once the cap is exceeded.
func (c *Controller) CheckRequestRate(ip string) error {
	now := time.Now()

	entry, _ := c.windows.GetOrSet(ip, &windowEntry{resetAt: now.Add(c.limits.RequestWindow)})
	w := entry.Value()

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(c.limits.RequestWindow)
	}

	w.count++
	if w.count > c.limits.MaxRequests {
		return NewError(ReasonRateLimited, time.Until(w.resetAt))
	}

	return nil
}

// CheckConnectionQuota claims one concurrent connection slot for the IP.
func (c *Controller) CheckConnectionQuota(ip string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conns[ip] >= c.limits.MaxConnsPerIP {
		return NewError(ReasonConnectionQuota, c.limits.RequestWindow)
	}
	c.conns[ip]++

	return nil
}

// ReleaseConnection returns a connection slot. Safe against double
// release: the counter never drops below zero.
func (c *Controller) ReleaseConnection(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conns[ip] > 0 {
		c.conns[ip]--
	}
	if c.conns[ip] == 0 {
		delete(c.conns, ip)
	}
}

// CheckSessionQuota rejects session creation when the IP already owns
// the maximum number of open sessions. The current count is supplied by
// the caller from the session store.
func (c *Controller) CheckSessionQuota(ip string, owned int) error {
	if owned >= c.limits.MaxSessionsPerIP {
		return NewError(ReasonSessionQuota, c.limits.RequestWindow)
	}

	return nil
}

// ActiveConnections reports the number of claimed connection slots for
// the IP, for tests and diagnostics.
func (c *Controller) ActiveConnections(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conns[ip]
}

func (c *Controller) Stop() {
	c.windows.Stop()
}
