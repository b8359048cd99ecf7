package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"profilebook/auth"
	"profilebook/domain"
	"profilebook/domain/event"
	"profilebook/errors"
	"profilebook/mocks"
	"profilebook/protocol"
	"profilebook/runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type hubFixture struct {
	registry      *runtime.Registry
	messaging     *mocks.MockIMessagingService
	notifications *mocks.MockINotificationService
	server        *httptest.Server
}

func newHubFixture(t *testing.T) hubFixture {
	ctrl := gomock.NewController(t)
	authenticator := mocks.NewMockIAuthService(ctrl)
	authenticator.EXPECT().Authenticate("alice-token").
		Return(domain.SubjectID("alice"), auth.Credential{UserID: "alice"}, nil).AnyTimes()
	authenticator.EXPECT().Authenticate(gomock.Not("alice-token")).
		Return(domain.SubjectID(""), auth.Credential{}, errors.ErrUnauthenticated).AnyTimes()

	f := hubFixture{
		registry:      runtime.NewRegistry(),
		messaging:     mocks.NewMockIMessagingService(ctrl),
		notifications: mocks.NewMockINotificationService(ctrl),
	}
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), f.registry, authenticator, f.messaging, f.notifications, HubConfig{
		BufferSize:      8,
		PingInterval:    time.Second,
		IdleTimeout:     5 * time.Second,
		DeliveryTimeout: time.Second,
		AllowedOrigins:  []string{"*"},
	})
	f.server = httptest.NewServer(hub)
	t.Cleanup(f.server.Close)
	return f
}

func (f hubFixture) dial(t *testing.T, token, subprotocol string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?access_token=" + token
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}, HandshakeTimeout: time.Second}
	ws, resp, err := dialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readFrame(t *testing.T, ws *websocket.Conn, codec protocol.Codec) protocol.Frame {
	t.Helper()
	req := require.New(t)
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, data, err := ws.ReadMessage()
	req.NoError(err)
	var frame protocol.Frame
	req.NoError(codec.Unmarshal(data, &frame))
	return frame
}

func writeFrame(t *testing.T, ws *websocket.Conn, codec protocol.Codec, frame protocol.Frame) {
	t.Helper()
	data, err := codec.Marshal(frame)
	require.NoError(t, err)
	messageType := websocket.TextMessage
	if codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	require.NoError(t, ws.WriteMessage(messageType, data))
}

func TestHub_Rejects_Unauthenticated_Handshake(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	// When dialing with a foreign token
	_, resp, err := f.dial(t, "forged", protocol.SubprotocolJSON)

	// Then the upgrade is refused before any connection is registered
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Zero(f.registry.Count())
}

func TestHub_Welcome_Then_Register_Then_Unregister(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	codec := protocol.JSONCodec{}

	// Given alice connects
	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolJSON)
	req.NoError(err)
	req.Equal(protocol.SubprotocolJSON, ws.Subprotocol())

	// Then the first frame names her subject
	welcome := readFrame(t, ws, codec)
	req.Equal(protocol.TypeWelcome, welcome.Type)
	req.Equal("alice", welcome.Welcome.Subject)
	req.NotEmpty(welcome.Welcome.ConnectionID)
	req.Eventually(func() bool { return f.registry.IsConnected("alice") }, time.Second, 10*time.Millisecond)

	// When she hangs up
	req.NoError(ws.Close())

	// Then the handle is gone from the registry
	req.Eventually(func() bool { return f.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Ping_Pong(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	codec := protocol.JSONCodec{}
	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolJSON)
	req.NoError(err)
	readFrame(t, ws, codec)

	writeFrame(t, ws, codec, protocol.Frame{Type: protocol.TypePing, ID: "p1"})

	pong := readFrame(t, ws, codec)
	req.Equal(protocol.TypePong, pong.Type)
	req.Equal("p1", pong.ID)
}

func TestHub_Send_Message_Is_Acked(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	codec := protocol.JSONCodec{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	// Given the messaging service accepts the message
	f.messaging.EXPECT().SendMessage(gomock.Any(), domain.SendMessageCommand{
		SenderID: "alice", ReceiverID: "bob", Content: "hi bob",
	}).Return(domain.Message{ID: 7, SenderID: "alice", ReceiverID: "bob", Content: "hi bob", CreatedAt: at}, nil)

	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolJSON)
	req.NoError(err)
	readFrame(t, ws, codec)

	// When alice sends it over the socket
	writeFrame(t, ws, codec, protocol.Frame{
		Type: protocol.TypeSendMessage,
		ID:   "req-1",
		Send: &protocol.SendPayload{To: "bob", Content: "hi bob"},
	})

	// Then the ack carries the persisted row
	ack := readFrame(t, ws, codec)
	req.Equal(protocol.TypeAck, ack.Type)
	req.Equal("req-1", ack.ID)
	req.Equal(uint64(7), ack.Message.ID)
	req.True(at.Equal(ack.Message.CreatedAt))
}

func TestHub_Send_To_Self_Returns_Error_Frame(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	codec := protocol.JSONCodec{}

	f.messaging.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.ErrSelfTarget)

	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolJSON)
	req.NoError(err)
	readFrame(t, ws, codec)

	writeFrame(t, ws, codec, protocol.Frame{
		Type: protocol.TypeSendMessage,
		ID:   "req-2",
		Send: &protocol.SendPayload{To: "alice", Content: "me"},
	})

	reply := readFrame(t, ws, codec)
	req.Equal(protocol.TypeError, reply.Type)
	req.Equal("req-2", reply.ID)
	req.Equal(errors.CodeSelfTarget, reply.Error.Code)
}

func TestHub_Mark_All_Read_Acks_Count(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	codec := protocol.JSONCodec{}

	f.notifications.EXPECT().MarkAllRead(gomock.Any(), domain.SubjectID("alice")).Return(3, nil)

	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolJSON)
	req.NoError(err)
	readFrame(t, ws, codec)

	writeFrame(t, ws, codec, protocol.Frame{Type: protocol.TypeMarkAllRead, ID: "r"})

	ack := readFrame(t, ws, codec)
	req.Equal(protocol.TypeAck, ack.Type)
	req.NotNil(ack.Count)
	req.Equal(3, *ack.Count)
}

func TestHub_Pushes_Events_In_Binary_With_Msgpack(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	codec := protocol.MsgpackCodec{}

	// Given alice negotiated msgpack
	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolMsgpack)
	req.NoError(err)
	readFrame(t, ws, codec)
	req.Eventually(func() bool { return f.registry.IsConnected("alice") }, time.Second, 10*time.Millisecond)

	// When a notification is pushed to her handle
	conn := f.registry.ConnectionsFor("alice")[0]
	notification := domain.Notification{ID: 4, UserID: "alice", Message: "hello", CreatedAt: time.Now().UTC()}
	req.NoError(conn.Push(context.Background(), event.NotificationCreated{Notification: notification}))

	// Then she receives a binary frame
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	messageType, data, err := ws.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.BinaryMessage, messageType)
	var frame protocol.Frame
	req.NoError(codec.Unmarshal(data, &frame))
	req.Equal(protocol.TypeNotificationCreated, frame.Type)
	req.Equal(uint64(4), frame.Notification.ID)
}

func TestConn_Push_After_Close_Fails(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)
	ws, _, err := f.dial(t, "alice-token", protocol.SubprotocolJSON)
	req.NoError(err)
	readFrame(t, ws, protocol.JSONCodec{})
	req.Eventually(func() bool { return f.registry.IsConnected("alice") }, time.Second, 10*time.Millisecond)

	conn := f.registry.ConnectionsFor("alice")[0]
	req.NoError(conn.Close())
	req.NoError(conn.Close())

	err = conn.Push(context.Background(), event.NotificationRead{UserID: "alice"})
	req.ErrorIs(err, errors.ErrConnectionClosed)
}
