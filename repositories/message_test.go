package repositories

import (
	"log/slog"
	"profilebook/domain"
	"profilebook/errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessageRepository(t *testing.T, limit *int) *MessageRepository {
	repository, err := NewMessageRepository(openDB(t), slog.Default(), NewClock(), limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func Test_Appended_Message_Is_Returned_Once_And_Last(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, nil)

	// Given a conversation with history
	_, err := repository.AppendMessage("alice", "bob", "hello")
	req.NoError(err)
	_, err = repository.AppendMessage("bob", "alice", "hi alice")
	req.NoError(err)

	// When alice sends another message
	sent, err := repository.AppendMessage("alice", "bob", "how are you?")
	req.NoError(err)

	// Then both members see it exactly once, as the newest entry
	for _, pair := range [][2]domain.SubjectID{{"alice", "bob"}, {"bob", "alice"}} {
		messages, err := repository.MessagesBetween(pair[0], pair[1], nil)
		req.NoError(err)
		req.Len(messages, 3)
		req.Equal(sent, messages[2])
		req.Equal(1, lo.CountBy(messages, func(m domain.Message) bool { return m.ID == sent.ID }))
	}
}

func Test_Messages_Are_Isolated_Per_Conversation(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, nil)

	_, err := repository.AppendMessage("alice", "bob", "for bob")
	req.NoError(err)
	_, err = repository.AppendMessage("alice", "carol", "for carol")
	req.NoError(err)

	messages, err := repository.MessagesBetween("bob", "alice", nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for bob", messages[0].Content)
}

func Test_Since_Is_Exclusive(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, nil)

	first, err := repository.AppendMessage("alice", "bob", "one")
	req.NoError(err)
	second, err := repository.AppendMessage("bob", "alice", "two")
	req.NoError(err)
	third, err := repository.AppendMessage("alice", "bob", "three")
	req.NoError(err)

	messages, err := repository.MessagesBetween("alice", "bob", &first.CreatedAt)
	req.NoError(err)
	req.Equal([]domain.Message{second, third}, messages)

	messages, err = repository.MessagesBetween("alice", "bob", &third.CreatedAt)
	req.NoError(err)
	req.Empty(messages)
}

func Test_Limit_Keeps_Most_Recent_Messages(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, lo.ToPtr(2))

	var sent []domain.Message
	for _, content := range []string{"one", "two", "three"} {
		message, err := repository.AppendMessage("alice", "bob", content)
		req.NoError(err)
		sent = append(sent, message)
	}

	messages, err := repository.MessagesBetween("alice", "bob", nil)
	req.NoError(err)
	req.Equal(sent[1:], messages)

	// A catch-up is never truncated
	since := sent[0].CreatedAt.Add(-time.Second)
	messages, err = repository.MessagesBetween("alice", "bob", &since)
	req.NoError(err)
	req.Len(messages, 3)
}

func Test_Message_Timestamps_Strictly_Increase(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, nil)

	var previous domain.Message
	for i := 0; i < 50; i++ {
		message, err := repository.AppendMessage("alice", "bob", "burst")
		req.NoError(err)
		if i > 0 {
			req.True(message.CreatedAt.After(previous.CreatedAt))
			req.Greater(message.ID, previous.ID)
		}
		previous = message
	}
}

func Test_Get_Message_By_ID(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, nil)

	sent, err := repository.AppendMessage("alice", "bob", "hello")
	req.NoError(err)

	fetched, err := repository.GetMessage(sent.ID)
	req.NoError(err)
	req.Equal(sent, fetched)

	_, err = repository.GetMessage(sent.ID + 100)
	req.ErrorIs(err, errors.ErrNotFound)
}
