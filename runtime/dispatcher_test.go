package runtime

import (
	"context"
	"log/slog"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/domain/event"
	"profilebook/errors"
	"profilebook/mocks"
	"profilebook/observability"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newDispatcher(registry contract.IRegistry, timeout time.Duration) *Dispatcher {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewDispatcher(log, registry, observability.NewMonitoringManager(log, registry.Count), timeout)
}

func mockConnection(ctrl *gomock.Controller, id contract.ConnectionID) *mocks.MockConnection {
	conn := mocks.NewMockConnection(ctrl)
	conn.EXPECT().ID().Return(id).AnyTimes()
	return conn
}

func TestDispatcher_Deliver_To_All_Connections(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	first := mockConnection(ctrl, "c1")
	second := mockConnection(ctrl, "c2")
	evt := event.MessageCreated{Message: domain.Message{ID: 1, SenderID: "alice", ReceiverID: "bob"}}

	// Given bob has two live connections
	mockRegistry.EXPECT().ConnectionsFor(domain.SubjectID("bob")).
		Return([]contract.Connection{first, second})
	gomock.InOrder(
		first.EXPECT().Push(gomock.Any(), evt).Return(nil),
		second.EXPECT().Push(gomock.Any(), evt).Return(nil),
	)

	// When the event is delivered
	outcome := newDispatcher(mockRegistry, time.Second).Deliver(context.Background(), evt, "bob")

	// Then both connections received it
	req.False(outcome.Missed)
	req.Equal([]contract.ConnectionID{"c1", "c2"}, outcome.Delivered)
}

func TestDispatcher_Deliver_Without_Connection_Is_Missed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)

	mockRegistry.EXPECT().ConnectionsFor(domain.SubjectID("bob")).Return(nil)

	outcome := newDispatcher(mockRegistry, time.Second).
		Deliver(context.Background(), event.NotificationCreated{}, "bob")

	req.True(outcome.Missed)
	req.Empty(outcome.Delivered)
}

func TestDispatcher_Failed_Push_Evicts_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	dead := mockConnection(ctrl, "dead")
	alive := mockConnection(ctrl, "alive")

	// Given one of bob's connections is closed
	mockRegistry.EXPECT().ConnectionsFor(domain.SubjectID("bob")).
		Return([]contract.Connection{dead, alive})
	dead.EXPECT().Push(gomock.Any(), gomock.Any()).Return(errors.ErrConnectionClosed)
	alive.EXPECT().Push(gomock.Any(), gomock.Any()).Return(nil)

	// Then it is removed from the registry and closed
	mockRegistry.EXPECT().Unregister(dead)
	dead.EXPECT().Close().Return(nil)

	outcome := newDispatcher(mockRegistry, time.Second).
		Deliver(context.Background(), event.NotificationCreated{}, "bob")

	req.False(outcome.Missed)
	req.Equal([]contract.ConnectionID{"alive"}, outcome.Delivered)
}

func TestDispatcher_Push_Is_Bounded_By_Timeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	stuck := mockConnection(ctrl, "stuck")

	mockRegistry.EXPECT().ConnectionsFor(domain.SubjectID("bob")).Return([]contract.Connection{stuck})
	stuck.EXPECT().Push(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return errors.ErrSlowConsumer
		})
	mockRegistry.EXPECT().Unregister(stuck)
	stuck.EXPECT().Close().Return(nil)

	start := time.Now()
	outcome := newDispatcher(mockRegistry, 20*time.Millisecond).
		Deliver(context.Background(), event.NotificationCreated{}, "bob")

	req.Less(time.Since(start), time.Second)
	req.Empty(outcome.Delivered)
	req.True(outcome.Missed)
}

func TestDispatcher_All_Pushes_Failing_Is_Missed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	closed := mockConnection(ctrl, "closed")

	// Given bob's only connection is already closed
	mockRegistry.EXPECT().ConnectionsFor(domain.SubjectID("bob")).Return([]contract.Connection{closed})
	closed.EXPECT().Push(gomock.Any(), gomock.Any()).Return(errors.ErrConnectionClosed)
	mockRegistry.EXPECT().Unregister(closed)
	closed.EXPECT().Close().Return(nil)

	// When a notification is delivered
	outcome := newDispatcher(mockRegistry, time.Second).
		Deliver(context.Background(), event.NotificationCreated{}, "bob")

	// Then nothing was delivered and the event is left for catch-up
	req.Empty(outcome.Delivered)
	req.True(outcome.Missed)
}

func TestDispatcher_Caller_Cancellation_Does_Not_Abort_Push(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	conn := mockConnection(ctrl, "c1")

	mockRegistry.EXPECT().ConnectionsFor(domain.SubjectID("bob")).Return([]contract.Connection{conn})
	conn.EXPECT().Push(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			return ctx.Err()
		})

	// Given the request that triggered the event is already gone
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := newDispatcher(mockRegistry, time.Second).Deliver(ctx, event.NotificationCreated{}, "bob")
	req.Equal([]contract.ConnectionID{"c1"}, outcome.Delivered)
}
