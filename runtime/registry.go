package runtime

import (
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/observability"
	"sort"
	"sync"
)

type Set map[contract.ConnectionID]contract.Connection

// Registry maps each subject to its live connections. It is safe for
// concurrent use; every read returns a snapshot that callers may iterate
// without holding the lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.SubjectID]Set                  // subject -> handles
	owners      map[contract.ConnectionID]domain.SubjectID // handle -> subject
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.SubjectID]Set),
		owners:      make(map[contract.ConnectionID]domain.SubjectID),
	}
}

// Register adds conn under subject. Registering the same handle twice is a no-op.
func (r *Registry) Register(subject domain.SubjectID, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[conn.ID()]; ok {
		return
	}
	if _, ok := r.connections[subject]; !ok {
		r.connections[subject] = make(Set)
	}
	r.connections[subject][conn.ID()] = conn
	r.owners[conn.ID()] = subject
	observability.ConnectionsActive.Inc()
}

// Unregister removes conn wherever it is registered. Unknown handles are ignored,
// and no empty sets are left behind.
func (r *Registry) Unregister(conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subject, ok := r.owners[conn.ID()]
	if !ok {
		return
	}
	delete(r.owners, conn.ID())

	if members, ok := r.connections[subject]; ok {
		delete(members, conn.ID())
		if len(members) == 0 {
			delete(r.connections, subject)
		}
	}
	observability.ConnectionsActive.Dec()
}

// ConnectionsFor returns the subject's handles ordered by creation time.
func (r *Registry) ConnectionsFor(subject domain.SubjectID) []contract.Connection {
	r.mu.RLock()
	members := r.connections[subject]
	conns := make([]contract.Connection, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	sortByCreation(conns)
	return conns
}

func (r *Registry) IsConnected(subject domain.SubjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[subject]) > 0
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

// Snapshot returns every registered handle.
func (r *Registry) Snapshot() []contract.Connection {
	r.mu.RLock()
	conns := make([]contract.Connection, 0, len(r.owners))
	for _, members := range r.connections {
		for _, conn := range members {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	sortByCreation(conns)
	return conns
}

func sortByCreation(conns []contract.Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		if conns[i].CreatedAt().Equal(conns[j].CreatedAt()) {
			return conns[i].ID() < conns[j].ID()
		}
		return conns[i].CreatedAt().Before(conns[j].CreatedAt())
	})
}
