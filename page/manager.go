package page

import (
	"sort"
	"sync"
	"time"
)

const DefaultPeerTimeout = 2 * time.Second

type Manager struct {
	mu          sync.RWMutex
	pages       map[string]*Page
	peerTimeout time.Duration
}

type Option func(*Manager)

// WithPeerTimeout bounds each round trip to a page script.
func WithPeerTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.peerTimeout = d
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{pages: make(map[string]*Page), peerTimeout: DefaultPeerTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Create() *Page {
	p := newPage(m.peerTimeout)
	m.mu.Lock()
	m.pages[p.ID] = p
	m.mu.Unlock()
	return p
}

// List returns pages oldest first.
func (m *Manager) List() []*Page {
	m.mu.RLock()
	list := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		list = append(list, p)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (m *Manager) Get(id string) (*Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	return p, ok
}

// Remove drops the page and signals its peer connection to close.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	p, ok := m.pages[id]
	if ok {
		delete(m.pages, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	p.close()
	return nil
}

// Showing returns the pages whose last completed load used key.
func (m *Manager) Showing(key string) []*Page {
	var out []*Page
	for _, p := range m.List() {
		if k, ok := p.Key(); ok && k == key {
			out = append(out, p)
		}
	}
	return out
}
