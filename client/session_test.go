package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/protocol"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	server       *httptest.Server
	upgrader     websocket.Upgrader
	refuse       atomic.Bool
	unauthorized atomic.Bool
	connections  atomic.Int32
	frames       atomic.Int32
	conns        chan *websocket.Conn

	mu      sync.Mutex
	handle  func(ws *websocket.Conn, frame protocol.Frame)
	welcome func(ws *websocket.Conn)
}

func newFakeHub(t *testing.T) *fakeHub {
	h := &fakeHub{
		upgrader: websocket.Upgrader{Subprotocols: protocol.Subprotocols()},
		conns:    make(chan *websocket.Conn, 8),
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) url() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *fakeHub) onFrame(fn func(ws *websocket.Conn, frame protocol.Frame)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handle = fn
}

// afterWelcome runs fn on every new connection right after the welcome frame.
func (h *fakeHub) afterWelcome(fn func(ws *websocket.Conn)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.welcome = fn
}

func (h *fakeHub) serve(w http.ResponseWriter, r *http.Request) {
	if h.unauthorized.Load() {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if h.refuse.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	n := h.connections.Add(1)
	select {
	case h.conns <- ws:
	default:
	}

	reply(ws, protocol.Frame{
		Type:    protocol.TypeWelcome,
		Welcome: &protocol.WelcomePayload{Subject: "alice", ConnectionID: fmt.Sprintf("conn-%d", n)},
	})
	h.mu.Lock()
	welcome := h.welcome
	h.mu.Unlock()
	if welcome != nil {
		welcome(ws)
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame protocol.Frame
		if err := (protocol.JSONCodec{}).Unmarshal(data, &frame); err != nil {
			continue
		}
		h.frames.Add(1)
		h.mu.Lock()
		handle := h.handle
		h.mu.Unlock()
		if handle != nil {
			handle(ws, frame)
		}
	}
}

func reply(ws *websocket.Conn, frame protocol.Frame) {
	data, _ := (protocol.JSONCodec{}).Marshal(frame)
	_ = ws.WriteMessage(websocket.TextMessage, data)
}

type fakeStore struct {
	mu                sync.Mutex
	messages          []domain.Message
	notifications     []domain.Notification
	unread            int
	conversationCalls int
}

func (s *fakeStore) Conversation(_ context.Context, other domain.SubjectID, since *time.Time) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationCalls++
	var out []domain.Message
	for _, m := range s.messages {
		if m.Involves(other) && (since == nil || m.CreatedAt.After(*since)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) Notifications(_ context.Context, since *time.Time) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if since == nil || n.CreatedAt.After(*since) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeStore) UnreadCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread, nil
}

func (s *fakeStore) add(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationCalls
}

func newTestSession(t *testing.T, hubURL string, store Store) *Session {
	cfg := Config{
		HubURL:         hubURL,
		Codec:          protocol.SubprotocolJSON,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     40 * time.Millisecond,
		MaxAttempts:    3,
		RequestTimeout: time.Second,
		PollInterval:   20 * time.Millisecond,
	}
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), cfg, store, func() string { return "alice-token" })
	t.Cleanup(session.Disconnect)
	return session
}

func TestSession_Connect_Learns_Subject_And_Fast_Fails_Self_Target(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	session := newTestSession(t, hub.url(), &fakeStore{})

	// Given a connected session
	req.NoError(session.Connect(context.Background()))
	req.Equal(Connected, session.State())
	req.Equal(domain.SubjectID("alice"), session.Subject())

	// When alice writes to herself
	_, err := session.Send(context.Background(), "alice", "note to self")

	// Then nothing reaches the wire
	req.ErrorIs(err, errors.ErrSelfTarget)
	req.Zero(hub.frames.Load())
}

func TestSession_Calls_Outside_Connected_Fail(t *testing.T) {
	req := require.New(t)
	session := newTestSession(t, "ws://127.0.0.1:1", &fakeStore{})

	_, err := session.Send(context.Background(), "bob", "hi")
	req.ErrorIs(err, errors.ErrNotConnected)

	_, err = session.MarkAllRead(context.Background())
	req.ErrorIs(err, errors.ErrNotConnected)
}

func TestSession_Connect_Rejected_Token(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	hub.unauthorized.Store(true)
	session := newTestSession(t, hub.url(), &fakeStore{})

	err := session.Connect(context.Background())

	req.ErrorIs(err, errors.ErrUnauthenticated)
	req.Equal(Disconnected, session.State())
}

func TestSession_Send_Is_Acked_And_Merged(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	at := time.Now().UTC()
	hub.onFrame(func(ws *websocket.Conn, frame protocol.Frame) {
		if frame.Type == protocol.TypeSendMessage {
			m := protocol.Message{ID: 1, SenderID: "alice", ReceiverID: frame.Send.To, Content: frame.Send.Content, CreatedAt: at}
			reply(ws, protocol.Frame{Type: protocol.TypeAck, ID: frame.ID, Message: &m})
		}
	})
	session := newTestSession(t, hub.url(), &fakeStore{})
	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenConversation(context.Background(), "bob")
	req.NoError(err)

	// When alice sends to bob
	message, err := session.Send(context.Background(), "bob", "hi bob")

	// Then the persisted row is returned and shown in the open conversation
	req.NoError(err)
	req.Equal(domain.MessageID(1), message.ID)
	req.Len(view.Messages(), 1)
	req.Equal("hi bob", view.Messages()[0].Content)
}

func TestSession_Disconnect_Cancels_Pending_Calls(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	session := newTestSession(t, hub.url(), &fakeStore{})
	req.NoError(session.Connect(context.Background()))

	// Given a call the hub never answers
	errs := make(chan error, 1)
	go func() {
		_, err := session.Send(context.Background(), "bob", "hello?")
		errs <- err
	}()
	req.Eventually(func() bool { return session.pendingCount() == 1 }, time.Second, 5*time.Millisecond)

	// When the session is closed on purpose
	session.Disconnect()

	// Then the call is canceled and the session does not reconnect
	req.ErrorIs(<-errs, errors.ErrCanceled)
	req.Equal(Disconnected, session.State())
	time.Sleep(50 * time.Millisecond)
	req.Equal(int32(1), hub.connections.Load())
}

func TestSession_Transport_Loss_Fails_Pending_Then_Recovers(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	store := &fakeStore{}
	hub.onFrame(func(ws *websocket.Conn, frame protocol.Frame) {
		if frame.Type == protocol.TypeSendMessage {
			_ = ws.Close()
		}
	})
	session := newTestSession(t, hub.url(), store)

	var mu sync.Mutex
	var states []State
	session.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})
	reconnected := make(chan struct{}, 1)
	session.OnReconnected(func() { reconnected <- struct{}{} })

	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenConversation(context.Background(), "bob")
	req.NoError(err)
	req.Empty(view.Messages())

	// Given bob wrote while the transport is about to drop
	missed := domain.Message{ID: 9, SenderID: "bob", ReceiverID: "alice", Content: "you there?", CreatedAt: time.Now().UTC()}
	store.add(missed)

	// When the transport drops under a pending call
	_, err = session.Send(context.Background(), "bob", "boom")

	// Then the call fails with transport lost
	req.ErrorIs(err, errors.ErrTransportLost)

	// And the session reconnects, catches up and tells the listeners
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		req.Fail("no reconnect")
	}
	req.Equal(Connected, session.State())
	req.Equal([]domain.Message{missed}, view.Messages())
	req.Equal(int32(2), hub.connections.Load())

	mu.Lock()
	defer mu.Unlock()
	req.Contains(states, Reconnecting)
	req.Equal(Connected, states[len(states)-1])
}

func TestSession_Push_During_Reconnect_Does_Not_Hide_Missed_Messages(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	t0 := time.Now().UTC()
	seen := domain.Message{ID: 1, SenderID: "bob", ReceiverID: "alice", Content: "seen", CreatedAt: t0}
	store := &fakeStore{messages: []domain.Message{seen}}
	session := newTestSession(t, hub.url(), store)
	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenConversation(context.Background(), "bob")
	req.NoError(err)
	server := <-hub.conns

	// Given two messages persisted while the transport is down
	missed := domain.Message{ID: 2, SenderID: "bob", ReceiverID: "alice", Content: "missed", CreatedAt: t0.Add(time.Millisecond)}
	newer := domain.Message{ID: 3, SenderID: "bob", ReceiverID: "alice", Content: "newer", CreatedAt: t0.Add(2 * time.Millisecond)}
	store.add(missed)
	store.add(newer)

	// And the hub pushes the newer one as soon as the session is back,
	// ahead of the catch-up
	pushed := protocol.FromMessage(newer)
	hub.afterWelcome(func(ws *websocket.Conn) {
		reply(ws, protocol.Frame{Type: protocol.TypeMessageCreated, Message: &pushed})
	})
	session.OnStateChange(func(s State) {
		if s == Connected {
			time.Sleep(50 * time.Millisecond)
		}
	})
	reconnected := make(chan struct{}, 1)
	session.OnReconnected(func() { reconnected <- struct{}{} })

	// When the transport drops
	_ = server.Close()

	// Then the catch-up still returns the message the push overtook
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		req.Fail("no reconnect")
	}
	req.Equal([]domain.MessageID{1, 2, 3}, messageIDs(view.Messages()))
}

func TestSession_Explicit_Reconnect_Catches_Up_Open_Views(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	store := &fakeStore{}
	session := newTestSession(t, hub.url(), store)
	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenConversation(context.Background(), "bob")
	req.NoError(err)

	// Given bob wrote while alice was disconnected on purpose
	session.Disconnect()
	store.add(domain.Message{ID: 4, SenderID: "bob", ReceiverID: "alice", Content: "while you were out", CreatedAt: time.Now().UTC()})

	// When alice connects again
	req.NoError(session.Connect(context.Background()))

	// Then the open conversation already holds the missed message
	req.Equal([]domain.MessageID{4}, messageIDs(view.Messages()))
}

func TestSession_Concurrent_Connects_Share_One_Handshake(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	session := newTestSession(t, hub.url(), &fakeStore{})

	// When many callers connect at once
	const callers = 8
	errs := make(chan error, callers)
	var start sync.WaitGroup
	start.Add(1)
	for range callers {
		go func() {
			start.Wait()
			errs <- session.Connect(context.Background())
		}()
	}
	start.Done()

	// Then they all succeed over a single transport
	for range callers {
		req.NoError(<-errs)
	}
	req.Equal(Connected, session.State())
	req.Equal(int32(1), hub.connections.Load())
}

func TestSession_Goes_Offline_And_Polls_Until_Explicit_Connect(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	store := &fakeStore{}
	session := newTestSession(t, hub.url(), store)
	req.NoError(session.Connect(context.Background()))
	_, err := session.OpenConversation(context.Background(), "bob")
	req.NoError(err)
	server := <-hub.conns

	// Given the hub stops accepting connections
	hub.refuse.Store(true)
	_ = server.Close()

	// Then the session ends up offline once attempts are exhausted
	req.Eventually(func() bool { return session.State() == Offline }, 2*time.Second, 5*time.Millisecond)

	// And the poller keeps the open view fresh through the store
	before := store.calls()
	req.Eventually(func() bool { return store.calls() >= before+2 }, time.Second, 5*time.Millisecond)

	// When the hub is back and the user reconnects explicitly
	hub.refuse.Store(false)
	req.NoError(session.Connect(context.Background()))
	req.Equal(Connected, session.State())
}

func TestSession_Live_Push_Is_Merged_Before_Later_Replies(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	pushed := protocol.Message{ID: 3, SenderID: "bob", ReceiverID: "alice", Content: "ping me", CreatedAt: time.Now().UTC()}
	hub.onFrame(func(ws *websocket.Conn, frame protocol.Frame) {
		if frame.Type == protocol.TypePing {
			reply(ws, protocol.Frame{Type: protocol.TypeMessageCreated, Message: &pushed})
			reply(ws, protocol.Frame{Type: protocol.TypePong, ID: frame.ID})
		}
	})
	session := newTestSession(t, hub.url(), &fakeStore{})
	received := make(chan domain.Message, 1)
	session.OnMessage(func(m domain.Message) { received <- m })
	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenConversation(context.Background(), "bob")
	req.NoError(err)

	req.NoError(session.Ping(context.Background()))

	req.Len(view.Messages(), 1)
	req.Equal(domain.MessageID(3), (<-received).ID)
}

func TestSession_Mark_Read_Rolls_Back_When_Rejected(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	now := time.Now().UTC()
	store := &fakeStore{
		notifications: []domain.Notification{
			{ID: 1, UserID: "alice", Message: "first", CreatedAt: now.Add(-time.Minute)},
			{ID: 2, UserID: "alice", Message: "second", CreatedAt: now},
		},
		unread: 2,
	}
	hub.onFrame(func(ws *websocket.Conn, frame protocol.Frame) {
		if frame.Type == protocol.TypeMarkRead {
			reply(ws, protocol.ErrorFrame(frame.ID, errors.CodeNotFound, "not found"))
		}
	})
	session := newTestSession(t, hub.url(), store)
	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenNotifications(context.Background())
	req.NoError(err)
	req.Equal(2, view.Unread())

	// When the hub rejects the mark-read
	err = session.MarkNotificationRead(context.Background(), 1)

	// Then the local state is restored
	req.ErrorIs(err, errors.ErrNotFound)
	req.Equal(2, view.Unread())
	for _, n := range view.Notifications() {
		req.False(n.IsRead)
	}
}

func TestSession_Mark_Read_Applies_Optimistically(t *testing.T) {
	req := require.New(t)
	hub := newFakeHub(t)
	now := time.Now().UTC()
	store := &fakeStore{
		notifications: []domain.Notification{{ID: 1, UserID: "alice", Message: "first", CreatedAt: now}},
		unread:        1,
	}
	hub.onFrame(func(ws *websocket.Conn, frame protocol.Frame) {
		if frame.Type == protocol.TypeMarkRead {
			n := protocol.Notification{ID: 1, UserID: "alice", Message: "first", IsRead: true, CreatedAt: now}
			reply(ws, protocol.Frame{Type: protocol.TypeAck, ID: frame.ID, Notification: &n})
		}
	})
	session := newTestSession(t, hub.url(), store)
	req.NoError(session.Connect(context.Background()))
	view, err := session.OpenNotifications(context.Background())
	req.NoError(err)

	req.NoError(session.MarkNotificationRead(context.Background(), 1))

	req.Zero(view.Unread())
	req.True(view.Notifications()[0].IsRead)
}

func messageIDs(messages []domain.Message) []domain.MessageID {
	ids := make([]domain.MessageID, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestBackoff(t *testing.T) {
	req := require.New(t)
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, MaxAttempts: 4}

	for attempt := 0; attempt < 10; attempt++ {
		d := b.Delay(attempt)
		ceiling := min(b.Max, b.Initial<<attempt)
		req.GreaterOrEqual(d, ceiling/2)
		req.LessOrEqual(d, ceiling)
	}
	req.False(b.Exhausted(3))
	req.True(b.Exhausted(4))
	req.False(Backoff{}.Exhausted(1000))
}
