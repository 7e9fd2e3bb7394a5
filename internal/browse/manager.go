package browse

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/metrics"
)

// DefaultIdleTTL is how long an untouched session is kept.
const DefaultIdleTTL = 30 * time.Minute

// Manager keeps browse sessions in memory, keyed by an opaque id handed to the
// client in a cookie. Idle sessions are evicted and their probing cancelled.
type Manager struct {
	catalog CatalogProvider
	prober  ProbeRunner
	idleTTL time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty Manager.
func NewManager(cat CatalogProvider, prober ProbeRunner, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		catalog:  cat,
		prober:   prober,
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   log.WithComponent("browse"),
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating a fresh one when id is empty or
// unknown. The returned session has been marked as used.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = NewSession(uuid.NewString(), m.catalog, m.prober)
		m.sessions[s.ID()] = s
		metrics.SetBrowseSessions(len(m.sessions))
	}
	// Touched under m.mu so a concurrent Sweep cannot evict it first.
	s.touch(m.now())
	m.mu.Unlock()
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	metrics.SetBrowseSessions(len(m.sessions))
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.logger.Debug().Int("evicted", len(idle)).Msg("idle browse sessions evicted")
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) {
	interval := max(min(m.idleTTL/2, time.Minute), time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	clear(m.sessions)
	metrics.SetBrowseSessions(0)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
