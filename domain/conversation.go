package domain

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"
)

// Conversation is the unordered pair of subjects exchanging messages.
// It is derived on read and never stored.
type Conversation struct {
	lo SubjectID
	hi SubjectID
}

func NewConversation(a, b SubjectID) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation{lo: a, hi: b}
}

// Key is the canonical "lo|hi" form used as a store prefix.
func (c Conversation) Key() string {
	return string(c.lo) + "|" + string(c.hi)
}

func (c Conversation) Members() (SubjectID, SubjectID) {
	return c.lo, c.hi
}

func (c Conversation) Contains(m Message) bool {
	return NewConversation(m.SenderID, m.ReceiverID) == c
}

// SortMessages orders messages by timestamp, then by identity for equal timestamps.
func SortMessages(messages []Message) {
	slices.SortStableFunc(messages, func(a, b Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// MergeMessages merges live-pushed and fetched messages. Arrival order is
// irrelevant: the result is de-duplicated by identity and sorted by timestamp.
func MergeMessages(current, incoming []Message) []Message {
	merged := lo.UniqBy(append(slices.Clone(current), incoming...), func(m Message) MessageID {
		return m.ID
	})
	SortMessages(merged)
	return merged
}

// MergeNotifications de-duplicates by identity, keeping the incoming copy
// (the server's view of the read flag), newest first.
func MergeNotifications(current, incoming []Notification) []Notification {
	merged := lo.UniqBy(append(slices.Clone(incoming), current...), func(n Notification) NotificationID {
		return n.ID
	})
	slices.SortStableFunc(merged, func(a, b Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return merged
}

// MessageWatermark returns the timestamp of the newest message, nil when empty.
func MessageWatermark(messages []Message) *time.Time {
	if len(messages) == 0 {
		return nil
	}
	latest := lo.MaxBy(messages, func(a, b Message) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
	return lo.ToPtr(latest.CreatedAt)
}

// NotificationWatermark returns the creation time of the newest notification.
func NotificationWatermark(notifications []Notification) *time.Time {
	if len(notifications) == 0 {
		return nil
	}
	latest := lo.MaxBy(notifications, func(a, b Notification) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
	return lo.ToPtr(latest.CreatedAt)
}

func CountUnread(notifications []Notification) int {
	return lo.CountBy(notifications, func(n Notification) bool {
		return !n.IsRead
	})
}
