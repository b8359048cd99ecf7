package event

import (
	"profilebook/domain"
	"time"
)

type Kind string

const (
	MessageCreatedKind      Kind = "message_created"
	NotificationCreatedKind Kind = "notification_created"
	NotificationReadKind    Kind = "notification_read"
)

// DomainEvent is anything the dispatcher may push to a live connection.
type DomainEvent interface {
	Kind() Kind
}

// MessageCreated is pushed to the receiver and to the sender's other devices.
type MessageCreated struct {
	Message domain.Message
}

func (MessageCreated) Kind() Kind { return MessageCreatedKind }

// NotificationCreated is pushed to the notification owner.
type NotificationCreated struct {
	Notification domain.Notification
}

func (NotificationCreated) Kind() Kind { return NotificationCreatedKind }

// NotificationRead keeps the owner's devices in sync after a mark-read.
type NotificationRead struct {
	UserID domain.SubjectID
	IDs    []domain.NotificationID
	At     time.Time
}

func (NotificationRead) Kind() Kind { return NotificationReadKind }
