// Package protocol defines the frames exchanged over the live connection and
// the JSON shapes shared with the REST API.
package protocol

import (
	"fmt"
	"profilebook/domain"
	"profilebook/domain/event"
	"time"

	"github.com/samber/lo"
)

type FrameType string

// Client -> server
const (
	TypeSendMessage FrameType = "send_message"
	TypeMarkRead    FrameType = "mark_read"
	TypeMarkAllRead FrameType = "mark_all_read"
	TypePing        FrameType = "ping"
)

// Server -> client
const (
	TypeWelcome             FrameType = "welcome"
	TypeAck                 FrameType = "ack"
	TypeError               FrameType = "error"
	TypePong                FrameType = "pong"
	TypeMessageCreated      FrameType = "message_created"
	TypeNotificationCreated FrameType = "notification_created"
	TypeNotificationRead    FrameType = "notification_read"
)

// Frame is the single envelope of the websocket protocol. ID correlates a
// request with its ack or error; pushed events carry no ID.
type Frame struct {
	Type         FrameType        `json:"type" msgpack:"type"`
	ID           string           `json:"id,omitempty" msgpack:"id,omitempty"`
	Send         *SendPayload     `json:"send,omitempty" msgpack:"send,omitempty"`
	MarkRead     *MarkReadPayload `json:"mark_read,omitempty" msgpack:"mark_read,omitempty"`
	Welcome      *WelcomePayload  `json:"welcome,omitempty" msgpack:"welcome,omitempty"`
	Message      *Message         `json:"message,omitempty" msgpack:"message,omitempty"`
	Notification *Notification    `json:"notification,omitempty" msgpack:"notification,omitempty"`
	Read         *ReadPayload     `json:"read,omitempty" msgpack:"read,omitempty"`
	Count        *int             `json:"count,omitempty" msgpack:"count,omitempty"`
	Error        *ErrorPayload    `json:"error,omitempty" msgpack:"error,omitempty"`
}

type SendPayload struct {
	To      string `json:"to" msgpack:"to"`
	Content string `json:"content" msgpack:"content"`
}

type MarkReadPayload struct {
	NotificationID uint64 `json:"notification_id" msgpack:"notification_id"`
}

type WelcomePayload struct {
	Subject      string `json:"subject" msgpack:"subject"`
	ConnectionID string `json:"connection_id" msgpack:"connection_id"`
}

type ReadPayload struct {
	IDs []uint64  `json:"ids" msgpack:"ids"`
	At  time.Time `json:"at" msgpack:"at"`
}

type ErrorPayload struct {
	Code   string `json:"code" msgpack:"code"`
	Reason string `json:"reason" msgpack:"reason"`
}

type Message struct {
	ID         uint64    `json:"id" msgpack:"id"`
	SenderID   string    `json:"senderId" msgpack:"sender_id"`
	ReceiverID string    `json:"receiverId" msgpack:"receiver_id"`
	Content    string    `json:"content" msgpack:"content"`
	CreatedAt  time.Time `json:"createdAt" msgpack:"created_at"`
}

type Notification struct {
	ID        uint64    `json:"id" msgpack:"id"`
	UserID    string    `json:"userId" msgpack:"user_id"`
	Message   string    `json:"message" msgpack:"message"`
	IsRead    bool      `json:"isRead" msgpack:"is_read"`
	CreatedAt time.Time `json:"createdAt" msgpack:"created_at"`
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:         uint64(m.ID),
		SenderID:   m.SenderID.String(),
		ReceiverID: m.ReceiverID.String(),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

func (m Message) ToDomain() domain.Message {
	return domain.Message{
		ID:         domain.MessageID(m.ID),
		SenderID:   domain.SubjectID(m.SenderID),
		ReceiverID: domain.SubjectID(m.ReceiverID),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

func FromNotification(n domain.Notification) Notification {
	return Notification{
		ID:        uint64(n.ID),
		UserID:    n.UserID.String(),
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func (n Notification) ToDomain() domain.Notification {
	return domain.Notification{
		ID:        domain.NotificationID(n.ID),
		UserID:    domain.SubjectID(n.UserID),
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func FromMessages(messages []domain.Message) []Message {
	return lo.Map(messages, func(m domain.Message, _ int) Message { return FromMessage(m) })
}

func FromNotifications(notifications []domain.Notification) []Notification {
	return lo.Map(notifications, func(n domain.Notification, _ int) Notification { return FromNotification(n) })
}

// EventFrame renders a domain event as the frame pushed to clients.
func EventFrame(evt event.DomainEvent) (Frame, error) {
	switch e := evt.(type) {
	case event.MessageCreated:
		m := FromMessage(e.Message)
		return Frame{Type: TypeMessageCreated, Message: &m}, nil
	case event.NotificationCreated:
		n := FromNotification(e.Notification)
		return Frame{Type: TypeNotificationCreated, Notification: &n}, nil
	case event.NotificationRead:
		ids := lo.Map(e.IDs, func(id domain.NotificationID, _ int) uint64 { return uint64(id) })
		return Frame{Type: TypeNotificationRead, Read: &ReadPayload{IDs: ids, At: e.At}}, nil
	default:
		return Frame{}, fmt.Errorf("no frame for event %T", evt)
	}
}

// ErrorFrame answers the request id with a wire error code.
func ErrorFrame(id, code, reason string) Frame {
	return Frame{Type: TypeError, ID: id, Error: &ErrorPayload{Code: code, Reason: reason}}
}
