package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"profilebook/auth"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/protocol"
	"profilebook/services"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Authenticate(token string) (domain.SubjectID, auth.Credential, error)
}

type HubConfig struct {
	BufferSize      int
	PingInterval    time.Duration
	IdleTimeout     time.Duration
	DeliveryTimeout time.Duration
	AllowedOrigins  []string
}

// Hub upgrades authenticated requests into live connections, registers them
// and serves the client frames they send.
type Hub struct {
	log           *slog.Logger
	registry      contract.IRegistry
	authenticator Authenticator
	messaging     services.IMessagingService
	notifications services.INotificationService
	upgrader      websocket.Upgrader
	cfg           HubConfig
}

func NewHub(log *slog.Logger, registry contract.IRegistry, authenticator Authenticator,
	messaging services.IMessagingService, notifications services.INotificationService, cfg HubConfig) *Hub {
	return &Hub{
		log:           log,
		registry:      registry,
		authenticator: authenticator,
		messaging:     messaging,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    protocol.Subprotocols(),
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		cfg: cfg,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, _, err := h.authenticator.Authenticate(auth.TokenFromRequest(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(protocol.ErrorPayload{Code: errors.CodeUnauthenticated, Reason: err.Error()})
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "subject", subject, "error", err)
		return
	}

	codec := protocol.CodecFor(ws.Subprotocol())
	conn := NewConn(ws, subject, codec, h.cfg.BufferSize, h.cfg.PingInterval, h.log)
	go conn.WritePump()

	welcome := protocol.Frame{
		Type:    protocol.TypeWelcome,
		Welcome: &protocol.WelcomePayload{Subject: subject.String(), ConnectionID: string(conn.ID())},
	}
	if err := h.send(conn, welcome); err != nil {
		_ = conn.Close()
		return
	}

	h.registry.Register(subject, conn)
	h.log.Info("Connection opened", "subject", subject, "connection", conn.ID(), "subprotocol", codec.Subprotocol())
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.log.Info("Connection closed", "subject", subject, "connection", conn.ID())
	}()

	ctx := context.WithoutCancel(r.Context())
	_ = conn.ReadPump(h.cfg.IdleTimeout, func(frame protocol.Frame) {
		_ = h.send(conn, h.handle(ctx, subject, frame))
	})
}

// handle answers one client frame with an ack or an error frame.
func (h *Hub) handle(ctx context.Context, subject domain.SubjectID, frame protocol.Frame) protocol.Frame {
	switch frame.Type {
	case protocol.TypePing:
		return protocol.Frame{Type: protocol.TypePong, ID: frame.ID}
	case protocol.TypeSendMessage:
		if frame.Send == nil {
			return protocol.ErrorFrame(frame.ID, errors.CodeInvalid, "missing send payload")
		}
		message, err := h.messaging.SendMessage(ctx, domain.SendMessageCommand{
			SenderID:   subject,
			ReceiverID: domain.SubjectID(frame.Send.To),
			Content:    frame.Send.Content,
		})
		if err != nil {
			return h.reject(frame.ID, err)
		}
		dto := protocol.FromMessage(message)
		return protocol.Frame{Type: protocol.TypeAck, ID: frame.ID, Message: &dto}
	case protocol.TypeMarkRead:
		if frame.MarkRead == nil {
			return protocol.ErrorFrame(frame.ID, errors.CodeInvalid, "missing mark_read payload")
		}
		notification, err := h.notifications.MarkRead(ctx, domain.MarkReadCommand{
			SubjectID:      subject,
			NotificationID: domain.NotificationID(frame.MarkRead.NotificationID),
		})
		if err != nil {
			return h.reject(frame.ID, err)
		}
		dto := protocol.FromNotification(notification)
		return protocol.Frame{Type: protocol.TypeAck, ID: frame.ID, Notification: &dto}
	case protocol.TypeMarkAllRead:
		count, err := h.notifications.MarkAllRead(ctx, subject)
		if err != nil {
			return h.reject(frame.ID, err)
		}
		return protocol.Frame{Type: protocol.TypeAck, ID: frame.ID, Count: &count}
	default:
		return protocol.ErrorFrame(frame.ID, errors.CodeInvalid, "unknown frame type "+string(frame.Type))
	}
}

func (h *Hub) reject(id string, err error) protocol.Frame {
	code := errors.Code(err)
	if code == errors.CodeInternal {
		h.log.Error("Request failed", "id", id, "error", err)
	}
	return protocol.ErrorFrame(id, code, err.Error())
}

func (h *Hub) send(conn *Conn, frame protocol.Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.DeliveryTimeout)
	defer cancel()
	if err := conn.Send(ctx, frame); err != nil {
		h.log.Debug("Reply dropped", "connection", conn.ID(), "type", frame.Type, "error", err)
		return err
	}
	return nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
