package repository

import (
	"context"

	"church-portal-be/internal/model"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *model.Notification) error
	GetNotificationsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, int64, error)
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	// MarkAsRead returns gorm.ErrRecordNotFound when the notification does not belong to userID.
	MarkAsRead(ctx context.Context, userID string, notificationID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
}
