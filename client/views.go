package client

import (
	"profilebook/domain"
	"slices"
	"sync"
	"time"
)

// ConversationView is the local copy of one conversation. Live pushes and
// catch-up pages are merged by identity, so arrival order never matters.
// Only store pages move the watermark: a push can overtake a row persisted
// while the session was away, and must not hide it from the next catch-up.
type ConversationView struct {
	mu       sync.RWMutex
	other    domain.SubjectID
	messages []domain.Message
	synced   *time.Time
}

func newConversationView(other domain.SubjectID) *ConversationView {
	return &ConversationView{other: other}
}

func (v *ConversationView) Other() domain.SubjectID {
	return v.other
}

// Merge adds pushed or acknowledged messages; the watermark does not move.
func (v *ConversationView) Merge(incoming ...domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = domain.MergeMessages(v.messages, incoming)
}

func (v *ConversationView) Messages() []domain.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.messages)
}

// mergePage merges a page read from the store and advances the watermark.
func (v *ConversationView) mergePage(page []domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = domain.MergeMessages(v.messages, page)
	v.synced = later(v.synced, domain.MessageWatermark(page))
}

// Watermark is the newest timestamp read from the store, used as the
// exclusive catch-up bound.
func (v *ConversationView) Watermark() *time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced
}

// NotificationsView keeps the notification list newest first and an unread
// counter that may run ahead of the server while a mark-read is in flight.
type NotificationsView struct {
	mu            sync.RWMutex
	notifications []domain.Notification
	unread        int
	synced        *time.Time
}

func newNotificationsView() *NotificationsView {
	return &NotificationsView{}
}

func (v *NotificationsView) Merge(incoming ...domain.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notifications = domain.MergeNotifications(v.notifications, incoming)
	v.unread = domain.CountUnread(v.notifications)
}

func (v *NotificationsView) Notifications() []domain.Notification {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.notifications)
}

func (v *NotificationsView) Unread() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unread
}

func (v *NotificationsView) mergePage(page []domain.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notifications = domain.MergeNotifications(v.notifications, page)
	v.unread = domain.CountUnread(v.notifications)
	v.synced = later(v.synced, domain.NotificationWatermark(page))
}

func (v *NotificationsView) Watermark() *time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced
}

// setUnread reconciles the counter with the server.
func (v *NotificationsView) setUnread(count int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unread = count
}

// markRead flags the given notifications locally and returns the ones that
// actually changed, so a failed request can undo exactly those.
func (v *NotificationsView) markRead(ids ...domain.NotificationID) []domain.NotificationID {
	v.mu.Lock()
	defer v.mu.Unlock()

	var changed []domain.NotificationID
	for i := range v.notifications {
		n := &v.notifications[i]
		if !n.IsRead && slices.Contains(ids, n.ID) {
			n.IsRead = true
			changed = append(changed, n.ID)
		}
	}
	v.unread = max(0, v.unread-len(changed))
	return changed
}

// markAllRead flags every loaded notification and returns the ones that changed.
func (v *NotificationsView) markAllRead() []domain.NotificationID {
	v.mu.Lock()
	defer v.mu.Unlock()

	var changed []domain.NotificationID
	for i := range v.notifications {
		if !v.notifications[i].IsRead {
			v.notifications[i].IsRead = true
			changed = append(changed, v.notifications[i].ID)
		}
	}
	v.unread = max(0, v.unread-len(changed))
	return changed
}

// rollback undoes an optimistic mark-read.
func (v *NotificationsView) rollback(ids []domain.NotificationID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.notifications {
		n := &v.notifications[i]
		if n.IsRead && slices.Contains(ids, n.ID) {
			n.IsRead = false
			v.unread++
		}
	}
}

func later(a, b *time.Time) *time.Time {
	if a == nil || (b != nil && b.After(*a)) {
		return b
	}
	return a
}
