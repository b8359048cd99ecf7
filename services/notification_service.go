//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"profilebook/auth"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/domain/event"
	"profilebook/errors"
	"profilebook/observability"
	"profilebook/repositories"
	"time"
)

type INotificationService interface {
	Notify(ctx context.Context, cmd domain.NotifyCommand) (domain.Notification, error)
	GetNotifications(ctx context.Context, cmd domain.GetNotificationsCommand) ([]domain.Notification, error)
	MarkRead(ctx context.Context, cmd domain.MarkReadCommand) (domain.Notification, error)
	MarkAllRead(ctx context.Context, subject domain.SubjectID) (int, error)
	UnreadCount(ctx context.Context, subject domain.SubjectID) (int, error)
}

type NotificationService struct {
	log              *slog.Logger
	notifications    repositories.INotificationRepository
	users            repositories.IUserRepository
	dispatcher       contract.IDispatcher
	maxContentLength int
}

func NewNotificationService(
	log *slog.Logger,
	notifications repositories.INotificationRepository,
	users repositories.IUserRepository,
	dispatcher contract.IDispatcher,
	maxContentLength int,
) *NotificationService {
	return &NotificationService{
		log:              log,
		notifications:    notifications,
		users:            users,
		dispatcher:       dispatcher,
		maxContentLength: maxContentLength,
	}
}

// Notify persists a notification for the target, then pushes it.
func (s *NotificationService) Notify(ctx context.Context, cmd domain.NotifyCommand) (domain.Notification, error) {
	target, err := domain.ParseSubjectID(string(cmd.TargetID))
	if err != nil {
		return domain.Notification{}, err
	}
	if err := auth.ValidateContent(cmd.Message, s.maxContentLength); err != nil {
		return domain.Notification{}, err
	}
	exists, err := s.users.Exists(target.String())
	if err != nil {
		return domain.Notification{}, err
	}
	if !exists {
		return domain.Notification{}, errors.ErrNotFound
	}

	notification, err := s.notifications.AppendNotification(target, cmd.Message)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("append notification: %w", err)
	}
	observability.NotificationsCreated.Inc()

	outcome := s.dispatcher.Deliver(ctx, event.NotificationCreated{Notification: notification}, target)
	if outcome.Missed {
		s.log.Debug("Target offline, notification left for catch-up", "id", notification.ID, "target", target)
	}
	return notification, nil
}

func (s *NotificationService) GetNotifications(_ context.Context, cmd domain.GetNotificationsCommand) ([]domain.Notification, error) {
	return s.notifications.NotificationsFor(cmd.SubjectID, cmd.Since)
}

// MarkRead flags the notification and tells the owner's other devices.
func (s *NotificationService) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) (domain.Notification, error) {
	notification, err := s.notifications.MarkNotificationRead(cmd.NotificationID, cmd.SubjectID)
	if err != nil {
		return domain.Notification{}, err
	}
	s.dispatcher.Deliver(ctx, event.NotificationRead{
		UserID: cmd.SubjectID,
		IDs:    []domain.NotificationID{notification.ID},
		At:     time.Now().UTC(),
	}, cmd.SubjectID)
	return notification, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, subject domain.SubjectID) (int, error) {
	ids, err := s.notifications.MarkAllRead(subject)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.dispatcher.Deliver(ctx, event.NotificationRead{UserID: subject, IDs: ids, At: time.Now().UTC()}, subject)
	}
	return len(ids), nil
}

func (s *NotificationService) UnreadCount(_ context.Context, subject domain.SubjectID) (int, error) {
	return s.notifications.UnreadCount(subject)
}
