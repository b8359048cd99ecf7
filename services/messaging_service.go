//go:generate go run go.uber.org/mock/mockgen -source=messaging_service.go -destination=../mocks/mock_messaging_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"profilebook/auth"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/domain/event"
	"profilebook/errors"
	"profilebook/moderation"
	"profilebook/observability"
	"profilebook/repositories"
	"time"

	"github.com/samber/lo"
)

const defaultSearchLimit = 20

type IMessagingService interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	SendByUsername(ctx context.Context, cmd domain.SendByUsernameCommand) (domain.Message, error)
	GetConversation(ctx context.Context, cmd domain.GetConversationCommand) ([]domain.Message, error)
	GetConversationByUsername(ctx context.Context, subject domain.SubjectID, username string, since *time.Time) ([]domain.Message, error)
	GetMessage(ctx context.Context, subject domain.SubjectID, id domain.MessageID) (domain.Message, error)
	Search(ctx context.Context, subject domain.SubjectID, query string) ([]domain.Message, error)
}

// MessagingService validates, persists, then dispatches direct messages.
// A message is always durable before any live push is attempted.
type MessagingService struct {
	log              *slog.Logger
	messages         repositories.IMessageRepository
	users            repositories.IUserRepository
	index            repositories.IMessageIndex
	censor           moderation.ICensor
	dispatcher       contract.IDispatcher
	maxContentLength int
}

func NewMessagingService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	index repositories.IMessageIndex,
	censor moderation.ICensor,
	dispatcher contract.IDispatcher,
	maxContentLength int,
) *MessagingService {
	return &MessagingService{
		log:              log,
		messages:         messages,
		users:            users,
		index:            index,
		censor:           censor,
		dispatcher:       dispatcher,
		maxContentLength: maxContentLength,
	}
}

func (s *MessagingService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	receiver, err := domain.ParseSubjectID(string(cmd.ReceiverID))
	if err != nil {
		return domain.Message{}, err
	}
	if receiver == cmd.SenderID {
		return domain.Message{}, errors.ErrSelfTarget
	}
	if err := auth.ValidateContent(cmd.Content, s.maxContentLength); err != nil {
		return domain.Message{}, err
	}
	if err := s.ensureExists(receiver); err != nil {
		return domain.Message{}, err
	}

	content := cmd.Content
	if s.censor != nil {
		var words []string
		content, words = s.censor.Censor(cmd.Content)
		if len(words) > 0 {
			observability.MessagesCensored.Inc()
			s.log.Info("Message content censored", "sender", cmd.SenderID, "words", len(words))
		}
	}

	message, err := s.messages.AppendMessage(cmd.SenderID, receiver, content)
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	observability.MessagesSent.Inc()

	if s.index != nil {
		if err := s.index.Index(message); err != nil {
			s.log.Warn("Unable to index message", "id", message.ID, "error", err)
		}
	}

	evt := event.MessageCreated{Message: message}
	outcome := s.dispatcher.Deliver(ctx, evt, receiver)
	if outcome.Missed {
		s.log.Debug("Receiver offline, message left for catch-up", "id", message.ID, "receiver", receiver)
	}
	// Other devices of the sender
	s.dispatcher.Deliver(ctx, evt, cmd.SenderID)

	return message, nil
}

func (s *MessagingService) SendByUsername(ctx context.Context, cmd domain.SendByUsernameCommand) (domain.Message, error) {
	receiver, err := s.resolveUsername(cmd.Username)
	if err != nil {
		return domain.Message{}, err
	}
	return s.SendMessage(ctx, domain.SendMessageCommand{
		SenderID:   cmd.SenderID,
		ReceiverID: receiver,
		Content:    cmd.Content,
	})
}

func (s *MessagingService) GetConversation(_ context.Context, cmd domain.GetConversationCommand) ([]domain.Message, error) {
	other, err := domain.ParseSubjectID(string(cmd.OtherID))
	if err != nil {
		return nil, err
	}
	return s.messages.MessagesBetween(cmd.SubjectID, other, cmd.Since)
}

func (s *MessagingService) GetConversationByUsername(ctx context.Context, subject domain.SubjectID, username string, since *time.Time) ([]domain.Message, error) {
	other, err := s.resolveUsername(username)
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, domain.GetConversationCommand{SubjectID: subject, OtherID: other, Since: since})
}

// GetMessage hides messages the subject is not part of behind NotFound.
func (s *MessagingService) GetMessage(_ context.Context, subject domain.SubjectID, id domain.MessageID) (domain.Message, error) {
	message, err := s.messages.GetMessage(id)
	if err != nil {
		return domain.Message{}, err
	}
	if !message.Involves(subject) {
		return domain.Message{}, errors.ErrNotFound
	}
	return message, nil
}

// Search returns the subject's own messages matching query, best match first.
func (s *MessagingService) Search(ctx context.Context, subject domain.SubjectID, query string) ([]domain.Message, error) {
	if query == "" {
		return nil, errors.ErrInvalidPayload
	}
	if s.index == nil {
		return nil, fmt.Errorf("%w: search index not configured", errors.ErrStoreUnavailable)
	}
	ids, err := s.index.Search(ctx, subject, query, defaultSearchLimit)
	if err != nil {
		return nil, err
	}

	var lookupErr error
	messages := lo.FilterMap(ids, func(id domain.MessageID, _ int) (domain.Message, bool) {
		message, err := s.GetMessage(ctx, subject, id)
		if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			lookupErr = err
		}
		return message, err == nil
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	return messages, nil
}

func (s *MessagingService) ensureExists(subject domain.SubjectID) error {
	exists, err := s.users.Exists(subject.String())
	if err != nil {
		return err
	}
	if !exists {
		return errors.ErrNotFound
	}
	return nil
}

func (s *MessagingService) resolveUsername(username string) (domain.SubjectID, error) {
	user, err := s.users.GetUserByUsername(username)
	if err != nil {
		return "", err
	}
	return domain.SubjectID(user.ID), nil
}
