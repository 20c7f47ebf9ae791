package server

import (
	"sync"

	"github.com/google/uuid"

	"classline/internal/services"
)

// Registry is the in-memory bidirectional map between authenticated
// users and their live connections. A user may hold several connections
// at once (multi-tab); the user is offline only when the last one goes.
// Both maps are guarded by one mutex so a user can never look online in
// one and absent in the other.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]services.Principal
	users map[uuid.UUID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]services.Principal),
		users: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Bind records a connection for the user. A second connection never
// replaces the first.
func (r *Registry) Bind(connID string, p services.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = p
	if r.users[p.ID] == nil {
		r.users[p.ID] = make(map[string]struct{})
	}
	r.users[p.ID][connID] = struct{}{}
}

// Unbind removes a connection. Idempotent: unbinding an unknown
// connection is a no-op. Reports whether the user's last connection was
// removed, i.e. the user transitioned to offline.
func (r *Registry) Unbind(connID string) (p services.Principal, wentOffline, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, found = r.conns[connID]
	if !found {
		return services.Principal{}, false, false
	}
	delete(r.conns, connID)
	if set := r.users[p.ID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, p.ID)
			wentOffline = true
		}
	}
	return p, wentOffline, true
}

// ConnectionsFor returns the user's broadcast group. Empty means
// offline.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	conns := make([]string, 0, len(set))
	for connID := range set {
		conns = append(conns, connID)
	}
	return conns
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Identity returns the principal bound to a connection.
func (r *Registry) Identity(connID string) (services.Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.conns[connID]
	return p, ok
}
