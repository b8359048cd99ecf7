//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_message_index.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"profilebook/domain"
	"strconv"

	"github.com/blugelabs/bluge"
)

const (
	fieldContent      = "content"
	fieldParticipants = "participants"
)

// IMessageIndex is the full-text index over direct message bodies.
type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, subject domain.SubjectID, query string, limit int) ([]domain.MessageID, error)
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds the message body under its identity. Both participants are
// stored as keywords so a search only ever sees the caller's own conversations.
func (i *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(strconv.FormatUint(uint64(message.ID), 10)).
		AddField(bluge.NewTextField(fieldContent, message.Content)).
		AddField(bluge.NewKeywordField(fieldParticipants, message.SenderID.String())).
		AddField(bluge.NewKeywordField(fieldParticipants, message.ReceiverID.String()))

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %d: %w", message.ID, err)
	}
	return nil
}

// Search returns the identities of the best matching messages involving subject.
func (i *MessageIndex) Search(ctx context.Context, subject domain.SubjectID, query string, limit int) ([]domain.MessageID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Unable to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent)).
		AddMust(bluge.NewTermQuery(subject.String()).SetField(fieldParticipants))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var ids []domain.MessageID
	match, err := matches.Next()
	for err == nil && match != nil {
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := strconv.ParseUint(string(value), 10, 64)
			if parseErr != nil {
				visitErr = parseErr
				return false
			}
			ids = append(ids, domain.MessageID(id))
			return false
		})
		if err == nil {
			err = visitErr
		}
		if err == nil {
			match, err = matches.Next()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}
	return ids, nil
}
