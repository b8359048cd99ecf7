package domain

import (
	"time"
)

// SendMessageCommand is the intent of Sender to write to Receiver.
type SendMessageCommand struct {
	SenderID   SubjectID
	ReceiverID SubjectID
	Content    string
}

// SendByUsernameCommand addresses the receiver by username instead of identifier.
type SendByUsernameCommand struct {
	SenderID SubjectID
	Username string
	Content  string
}

// GetConversationCommand fetches the messages of a pair, strictly after Since when set.
type GetConversationCommand struct {
	SubjectID SubjectID
	OtherID   SubjectID
	Since     *time.Time
}

// GetNotificationsCommand fetches notifications newer than Since when set.
type GetNotificationsCommand struct {
	SubjectID SubjectID
	Since     *time.Time
}

type MarkReadCommand struct {
	SubjectID      SubjectID
	NotificationID NotificationID
}

type NotifyCommand struct {
	TargetID SubjectID
	Message  string
}
