package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuthFactory создаёт клиент аутентификации для сессии браузера с указанным идентификатором.
type AuthFactory func(id string) Authenticator

// Manager владеет хранилищами сессий браузеров.
type Manager struct {
	newAuth AuthFactory
	dir     Resolver
	opts    Options
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	stores map[string]*managed
}

type managed struct {
	store    *Store
	lastSeen time.Time
}

// NewManager создаёт менеджер сессий. Хранилища, не использовавшиеся дольше idleTTL,
// закрываются; сохранённая сессия бэкенда при этом остаётся и восстанавливается
// при следующем запросе.
func NewManager(newAuth AuthFactory, dir Resolver, opts Options, idleTTL time.Duration) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		newAuth: newAuth,
		dir:     dir,
		opts:    opts,
		idleTTL: idleTTL,
		logger:  opts.Logger,
		now:     time.Now,
		stores:  make(map[string]*managed),
	}
}

// Get возвращает хранилище сессии браузера, создавая и запуская его при необходимости.
func (m *Manager) Get(id string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.stores[id]; ok {
		e.lastSeen = m.now()
		return e.store
	}

	opts := m.opts
	opts.Logger = m.logger.With(zap.String("session_id", id))
	st := NewStore(m.newAuth(id), m.dir, opts)
	st.Start(context.Background())

	m.stores[id] = &managed{store: st, lastSeen: m.now()}
	return st
}

// Lookup возвращает уже запущенное хранилище.
func (m *Manager) Lookup(id string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.stores[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.store, true
}

// Drop закрывает и удаляет хранилище сессии браузера.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	e, ok := m.stores[id]
	delete(m.stores, id)
	m.mu.Unlock()

	if ok {
		e.store.Close()
	}
}

// Len возвращает число открытых хранилищ.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Run периодически закрывает простаивающие хранилища до отмены ctx,
// после чего закрывает все оставшиеся.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return nil
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("closed idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	deadline := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Store
	for id, e := range m.stores {
		if e.lastSeen.Before(deadline) {
			idle = append(idle, e.store)
			delete(m.stores, id)
		}
	}
	m.mu.Unlock()

	for _, st := range idle {
		st.Close()
	}
	return len(idle)
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	stores := m.stores
	m.stores = make(map[string]*managed)
	m.mu.Unlock()

	for _, e := range stores {
		e.store.Close()
	}
}
