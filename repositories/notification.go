//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"profilebook/domain"
	"profilebook/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 3

// INotificationRepository is the notification half of the durable store boundary.
type INotificationRepository interface {
	AppendNotification(target domain.SubjectID, text string) (domain.Notification, error)
	NotificationsFor(subject domain.SubjectID, since *time.Time) ([]domain.Notification, error)
	MarkNotificationRead(id domain.NotificationID, owner domain.SubjectID) (domain.Notification, error)
	MarkAllRead(owner domain.SubjectID) ([]domain.NotificationID, error)
	UnreadCount(owner domain.SubjectID) (int, error)
}

type NotificationRepository struct {
	db    *badger.DB
	log   *slog.Logger
	clock *Clock
	seq   *badger.Sequence
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger, clock *Clock) (*NotificationRepository, error) {
	seq, err := db.GetSequence([]byte("seq:notif"), 128)
	if err != nil {
		return nil, fmt.Errorf("notification sequence: %w", err)
	}
	return &NotificationRepository{db: db, log: log, clock: clock, seq: seq}, nil
}

func (r *NotificationRepository) Close() error {
	return r.seq.Release()
}

// AppendNotification stores an unread notification under
// "notif:{subject}:{timestamp_padded}:{id_padded}".
func (r *NotificationRepository) AppendNotification(target domain.SubjectID, text string) (domain.Notification, error) {
	next, err := r.seq.Next()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	notification := domain.Notification{
		ID:        domain.NotificationID(next + 1),
		UserID:    target,
		Message:   text,
		CreatedAt: r.clock.Now(),
	}
	key := notificationKey(notification)

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, marshalNotification(notification)); err != nil {
			return err
		}
		return txn.Set(notificationIDKey(notification.ID), key)
	})
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return notification, nil
}

// NotificationsFor returns the subject's notifications newest first,
// restricted to those strictly newer than since when it is set.
func (r *NotificationRepository) NotificationsFor(subject domain.SubjectID, since *time.Time) ([]domain.Notification, error) {
	prefix := []byte(fmt.Sprintf("notif:%s:", subject))
	var notifications []domain.Notification

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte(maxTimestampKey)...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var notification domain.Notification
			err := it.Item().Value(func(val []byte) error {
				var err error
				notification, err = unmarshalNotification(val)
				return err
			})
			if err != nil {
				return err
			}
			if since != nil && !notification.CreatedAt.After(*since) {
				break
			}
			notifications = append(notifications, notification)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return notifications, nil
}

// MarkNotificationRead flips the read flag of a notification owned by owner.
// A notification owned by someone else is reported as not found and left untouched.
func (r *NotificationRepository) MarkNotificationRead(id domain.NotificationID, owner domain.SubjectID) (domain.Notification, error) {
	var notification domain.Notification
	err := r.update(func(txn *badger.Txn) error {
		pointer, err := txn.Get(notificationIDKey(id))
		if err != nil {
			return err
		}
		rowKey, err := pointer.ValueCopy(nil)
		if err != nil {
			return err
		}
		row, err := txn.Get(rowKey)
		if err != nil {
			return err
		}
		err = row.Value(func(val []byte) error {
			notification, err = unmarshalNotification(val)
			return err
		})
		if err != nil {
			return err
		}
		if notification.UserID != owner {
			return errors.ErrNotFound
		}
		if notification.IsRead {
			return nil
		}
		notification.IsRead = true
		return txn.Set(rowKey, marshalNotification(notification))
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) || stderrors.Is(err, errors.ErrNotFound) {
		return domain.Notification{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return notification, nil
}

// MarkAllRead marks every unread notification of owner and returns their identities.
func (r *NotificationRepository) MarkAllRead(owner domain.SubjectID) ([]domain.NotificationID, error) {
	prefix := []byte(fmt.Sprintf("notif:%s:", owner))
	var changed []domain.NotificationID

	err := r.update(func(txn *badger.Txn) error {
		changed = changed[:0]
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var updates []domain.Notification
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				notification, err := unmarshalNotification(val)
				if err != nil {
					return err
				}
				if !notification.IsRead {
					notification.IsRead = true
					updates = append(updates, notification)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		for _, notification := range updates {
			if err := txn.Set(notificationKey(notification), marshalNotification(notification)); err != nil {
				return err
			}
			changed = append(changed, notification.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return changed, nil
}

func (r *NotificationRepository) UnreadCount(owner domain.SubjectID) (int, error) {
	notifications, err := r.NotificationsFor(owner, nil)
	if err != nil {
		return 0, err
	}
	return domain.CountUnread(notifications), nil
}

// update retries a read-modify-write transaction that lost an optimistic
// concurrency check against a concurrent writer.
func (r *NotificationRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = r.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("Notification update conflicted, retrying", "attempt", attempt+1)
	}
	return err
}

func notificationKey(notification domain.Notification) []byte {
	return []byte(fmt.Sprintf("notif:%s:%019d:%020d",
		notification.UserID,
		notification.CreatedAt.UnixNano(),
		notification.ID,
	))
}

func notificationIDKey(id domain.NotificationID) []byte {
	return []byte(fmt.Sprintf("notifid:%020d", id))
}
