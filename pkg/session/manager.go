package session

import (
	"context"
	"sync"
	"time"

	"photoshare/pkg/auth"
	"photoshare/pkg/store"

	"github.com/charmbracelet/log"
)

type entry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Manager keeps one controller per client id
type Manager struct {
	api    PhotoAPI
	tokens store.TokenStore
	claims auth.ClaimsReader
	l      *log.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewManager creates a new controller manager
func NewManager(api PhotoAPI, tokens store.TokenStore, claims auth.ClaimsReader, l *log.Logger) *Manager {
	return &Manager{
		api:     api,
		tokens:  tokens,
		claims:  claims,
		l:       l,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the controller of clientID, creating it on first use. The
// stored token is restored but the photo lists are left to Initialize.
func (m *Manager) Get(ctx context.Context, clientID string) *Controller {
	m.mu.RLock()
	e, exists := m.entries[clientID]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		e, exists = m.entries[clientID]
		if !exists {
			e = &entry{ctrl: NewController(clientID, m.api, m.tokens, m.claims, m.l.With("client", clientID))}
			m.entries[clientID] = e
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	e.lastSeen = m.now()
	m.mu.Unlock()

	e.ctrl.restore(ctx)
	return e.ctrl
}

// Remove drops the cached controller of clientID. The stored token is kept,
// so the next Get starts from it again.
func (m *Manager) Remove(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, clientID)
}

// Len returns the number of cached controllers
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops controllers not used for maxIdle and returns how many were
// dropped. Controllers with an open subscription are kept.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	dropped := 0
	for id, e := range m.entries {
		if e.lastSeen.Before(cutoff) && !e.ctrl.watched() {
			delete(m.entries, id)
			dropped++
		}
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				m.l.Debug("dropped idle sessions", "count", n)
			}
		}
	}
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying c
func NewContext(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the controller stored by NewContext
func FromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Controller)
	return c, ok
}
