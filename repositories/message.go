//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
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

const maxTimestampKey = "9999999999999999999"

// IMessageRepository is the message half of the durable store boundary.
type IMessageRepository interface {
	AppendMessage(sender, receiver domain.SubjectID, content string) (domain.Message, error)
	GetMessage(id domain.MessageID) (domain.Message, error)
	MessagesBetween(a, b domain.SubjectID, since *time.Time) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	clock         *Clock
	seq           *badger.Sequence
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, clock *Clock, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, log: log, clock: clock, seq: seq, limitMessages: limitMessages}, nil
}

// Close releases the leased sequence range.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// AppendMessage persists a message in BadgerDB.
// The row key is "msg:{lo}|{hi}:{timestamp_padded}:{id_padded}" so a prefix
// scan over a conversation is already in timestamp order. A second key
// "msgid:{id}" points back to it for lookups by identity.
func (m *MessageRepository) AppendMessage(sender, receiver domain.SubjectID, content string) (domain.Message, error) {
	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	message := domain.Message{
		ID:         domain.MessageID(next + 1),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  m.clock.Now(),
	}
	key := messageKey(message)

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, marshalMessage(message)); err != nil {
			return err
		}
		return txn.Set(messageIDKey(message.ID), key)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

func (m *MessageRepository) GetMessage(id domain.MessageID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		pointer, err := txn.Get(messageIDKey(id))
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
		return row.Value(func(val []byte) error {
			message, err = unmarshalMessage(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// MessagesBetween returns the conversation of a and b in ascending timestamp
// order. With since set, only messages strictly newer are returned and no
// limit applies, so a catch-up never skips rows. Without since, the most
// recent limitMessages rows are returned.
func (m *MessageRepository) MessagesBetween(a, b domain.SubjectID, since *time.Time) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", domain.NewConversation(a, b).Key()))

	var messages []domain.Message
	var err error
	if since != nil {
		messages, err = m.scanForward(prefix, since.UnixNano()+1)
	} else {
		messages, err = m.scanLatest(prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	domain.SortMessages(messages)
	return messages, nil
}

func (m *MessageRepository) scanForward(prefix []byte, fromNano int64) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte(fmt.Sprintf("%019d", max(fromNano, 0)))...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				message, err := unmarshalMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func (m *MessageRepository) scanLatest(prefix []byte) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte(maxTimestampKey)...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(val []byte) error {
				message, err := unmarshalMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%020d",
		domain.NewConversation(message.SenderID, message.ReceiverID).Key(),
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

func messageIDKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("msgid:%020d", id))
}
