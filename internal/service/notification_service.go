package service

import (
	"context"
	"errors"

	"janasamparka/internal/messaging"
	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationReader is implemented by *repository.NotificationRepository.
type NotificationReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
	GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
}

type NotificationService struct {
	notifications NotificationReader
	sseHub        *messaging.SSEHub
}

func NewNotificationService(notifications NotificationReader, sseHub *messaging.SSEHub) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		sseHub:        sseHub,
	}
}

func (s *NotificationService) GetUserNotifications(ctx context.Context, userID uuid.UUID) (*model.NotificationListResponse, error) {
	notifications, err := s.notifications.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}

	unreadCount, err := s.notifications.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unreadCount,
	}, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	err := s.notifications.MarkAsRead(ctx, notificationID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.notifications.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) RegisterClient(userID uuid.UUID) *messaging.SSEClient {
	return s.sseHub.RegisterClient(userID)
}

func (s *NotificationService) UnregisterClient(client *messaging.SSEClient) {
	s.sseHub.UnregisterClient(client)
}
