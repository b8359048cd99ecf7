// Package domain contains core concepts of the messaging system.
// This file defines Message and Notification rows.
// Messages are immutable once persisted.
package domain

import (
	"time"
)

type MessageID uint64

type NotificationID uint64

// Message is a persisted direct message. SenderID never equals ReceiverID.
type Message struct {
	ID         MessageID
	SenderID   SubjectID
	ReceiverID SubjectID
	Content    string
	CreatedAt  time.Time
}

// Notification is mutated only by its owner marking it read.
type Notification struct {
	ID        NotificationID
	UserID    SubjectID
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// Involves reports whether subject is the sender or the receiver.
func (m Message) Involves(subject SubjectID) bool {
	return m.SenderID == subject || m.ReceiverID == subject
}

// Counterpart returns the other side of the message for subject.
func (m Message) Counterpart(subject SubjectID) SubjectID {
	if m.SenderID == subject {
		return m.ReceiverID
	}
	return m.SenderID
}
