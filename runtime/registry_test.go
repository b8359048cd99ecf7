package runtime

import (
	"context"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/domain/event"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Conn struct {
	id        contract.ConnectionID
	subject   domain.SubjectID
	createdAt time.Time
}

func newConn(subject domain.SubjectID, createdAt time.Time) *Conn {
	return &Conn{id: contract.ConnectionID(uuid.NewString()), subject: subject, createdAt: createdAt}
}

func (c *Conn) ID() contract.ConnectionID                         { return c.id }
func (c *Conn) Subject() domain.SubjectID                         { return c.subject }
func (c *Conn) CreatedAt() time.Time                              { return c.createdAt }
func (c *Conn) LastSeen() time.Time                               { return c.createdAt }
func (c *Conn) Push(_ context.Context, _ event.DomainEvent) error { return nil }
func (c *Conn) Close() error                                      { return nil }

func TestRegistry_Register_One_Subject_Many_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	now := time.Now()
	phone := newConn("alice", now.Add(time.Second))
	laptop := newConn("alice", now)

	// Given no connection
	req.False(registry.IsConnected("alice"))
	req.Empty(registry.ConnectionsFor("alice"))

	// When alice connects from two devices
	registry.Register("alice", phone)
	registry.Register("alice", laptop)

	// Then both are returned, oldest first
	req.True(registry.IsConnected("alice"))
	req.Equal(2, registry.Count())
	req.Equal([]contract.Connection{laptop, phone}, registry.ConnectionsFor("alice"))
}

func TestRegistry_Register_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newConn("alice", time.Now())

	registry.Register("alice", conn)
	registry.Register("alice", conn)

	req.Equal(1, registry.Count())
	req.Len(registry.ConnectionsFor("alice"), 1)
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newConn("alice", time.Now())
	other := newConn("bob", time.Now())

	// Given alice and bob are connected
	registry.Register("alice", conn)
	registry.Register("bob", other)

	// When alice disconnects twice and an unknown handle is removed
	registry.Unregister(conn)
	registry.Unregister(conn)
	registry.Unregister(newConn("carol", time.Now()))

	// Then no empty entry is left behind and bob is untouched
	req.False(registry.IsConnected("alice"))
	req.NotContains(registry.connections, domain.SubjectID("alice"))
	req.Equal([]contract.Connection{other}, registry.Snapshot())
}

func TestRegistry_Snapshot_Is_Detached(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newConn("alice", time.Now())
	registry.Register("alice", conn)

	// When the registry changes after a snapshot
	conns := registry.ConnectionsFor("alice")
	registry.Unregister(conn)

	// Then the snapshot still holds the handle
	req.Len(conns, 1)
	req.Empty(registry.ConnectionsFor("alice"))
}

func TestRegistry_Concurrent_Register_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newConn("alice", time.Now())
			registry.Register("alice", conn)
			_ = registry.ConnectionsFor("alice")
			registry.Unregister(conn)
		}()
	}
	wg.Wait()

	req.Zero(registry.Count())
	req.False(registry.IsConnected("alice"))
}
