package dashboard

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/cache"
	"racedash/internal/charts"
	"racedash/internal/visibility"
)

// ManagerConfig configures every session a Manager creates.
type ManagerConfig struct {
	Backend     backend.Backend
	Priority    charts.PrioritySet
	Visibility  visibility.Options
	Concurrency int
	// NewCache builds the cache for a new session id. Nil means an
	// in-memory cache with default TTL and capacity.
	NewCache func(sessionID string) cache.Cache
	Logger   *zap.Logger
}

// Manager keeps the live sessions of the service.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.Named("dashboard"),
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session over dataset with no charts mounted.
func (m *Manager) Create(dataset string) *Session {
	id := uuid.NewString()

	var c cache.Cache
	if m.cfg.NewCache != nil {
		c = m.cfg.NewCache(id)
	}
	s := NewSession(id, dataset, Deps{
		Backend:     m.cfg.Backend,
		Cache:       c,
		Priority:    m.cfg.Priority,
		Visibility:  m.cfg.Visibility,
		Concurrency: m.cfg.Concurrency,
		Logger:      m.logger,
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", id),
		zap.Int("dataset_bytes", len(dataset)),
	)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session. Used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
