//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"profilebook/domain"
	"profilebook/domain/event"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is used for logging and supervision during worker lifecycle events,
// avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type ConnectionID string

// Connection is one live transport handle owned by an authenticated subject.
// Push enqueues the event and returns once the handle accepted it or ctx expired.
type Connection interface {
	ID() ConnectionID
	Subject() domain.SubjectID
	CreatedAt() time.Time
	LastSeen() time.Time
	Push(ctx context.Context, evt event.DomainEvent) error
	Close() error
}

type IRegistry interface {
	Register(subject domain.SubjectID, conn Connection)
	Unregister(conn Connection)
	ConnectionsFor(subject domain.SubjectID) []Connection
	IsConnected(subject domain.SubjectID) bool
	Count() int
	Snapshot() []Connection
}

// Outcome reports which handles accepted a delivery. Missed is set when the
// target had no handle at all, which is a normal state.
type Outcome struct {
	Delivered []ConnectionID
	Missed    bool
}

type IDispatcher interface {
	Deliver(ctx context.Context, evt event.DomainEvent, target domain.SubjectID) Outcome
}
