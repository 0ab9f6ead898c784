package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"church-portal-be/internal/constant"
	"church-portal-be/internal/entity"
	"church-portal-be/internal/model"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/mailer"
	"church-portal-be/internal/repository"
	"church-portal-be/pkg/events"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// NotificationDelivery defines how to push real-time updates.
// Implemented by the WebSocket Hub.
type NotificationDelivery interface {
	Send(userID string, notification model.Notification)
	Broadcast(notification model.Notification)
}

// EventPublisher sends domain events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type NotificationService struct {
	repo      repository.NotificationRepository
	delivery  NotificationDelivery
	publisher EventPublisher
	mailer    mailer.IEmailService
	logger    logger.ILogger
}

// NewNotificationService wires the inbox. publisher and mail may be nil.
func NewNotificationService(
	repo repository.NotificationRepository,
	delivery NotificationDelivery,
	publisher EventPublisher,
	mail mailer.IEmailService,
	log logger.ILogger,
) *NotificationService {
	return &NotificationService{
		repo:      repo,
		delivery:  delivery,
		publisher: publisher,
		mailer:    mail,
		logger:    log,
	}
}

// ReportReady records and pushes the success notification for a finished job.
// Failures are logged and never returned.
func (s *NotificationService) ReportReady(ctx context.Context, job *entity.ReportJob, report *entity.FileResource) {
	reportID := report.Id
	notif := model.Notification{
		ID:         uuid.New(),
		UserID:     job.RequesterId,
		TenantID:   job.TenantId,
		TypeCode:   constant.EventReportReady,
		EntityType: constant.NotificationEntityReport,
		EntityID:   &reportID,
		Title:      "Report ready",
		Message:    fmt.Sprintf("Your %s report is ready to download.", strings.ToLower(job.Type)),
		Metadata: s.metadata(map[string]interface{}{
			"job_id":      job.Id.String(),
			"report_type": job.Type,
			"report_ref":  reportID.String(),
			"action_url":  fmt.Sprintf("/reports/%s", job.Id.String()),
		}),
		CreatedAt: time.Now(),
	}
	s.deliver(ctx, notif)

	s.publish(ctx, events.NewEvent(constant.EventReportReady, map[string]interface{}{
		"job_id":       job.Id.String(),
		"report_ref":   reportID.String(),
		"report_type":  job.Type,
		"requester_id": job.RequesterId,
		"tenant_id":    job.TenantId,
	}))

	if email := notifyEmail(job); email != "" && s.mailer != nil {
		// Send errors are logged by the mailer.
		_ = s.mailer.SendReportReady(email, job.Type, job.Id.String())
	}
}

// ReportFailed records and pushes the failure notification for a job.
func (s *NotificationService) ReportFailed(ctx context.Context, job *entity.ReportJob, reason string) {
	jobID := job.Id
	notif := model.Notification{
		ID:         uuid.New(),
		UserID:     job.RequesterId,
		TenantID:   job.TenantId,
		TypeCode:   constant.EventReportFailed,
		EntityType: constant.NotificationEntityReportJob,
		EntityID:   &jobID,
		Title:      "Report failed",
		Message:    fmt.Sprintf("Your %s report could not be generated: %s", strings.ToLower(job.Type), reason),
		Metadata: s.metadata(map[string]interface{}{
			"job_id":      jobID.String(),
			"report_type": job.Type,
			"error":       reason,
		}),
		CreatedAt: time.Now(),
	}
	s.deliver(ctx, notif)

	s.publish(ctx, events.NewEvent(constant.EventReportFailed, map[string]interface{}{
		"job_id":       jobID.String(),
		"report_type":  job.Type,
		"requester_id": job.RequesterId,
		"tenant_id":    job.TenantId,
		"error":        reason,
	}))

	if email := notifyEmail(job); email != "" && s.mailer != nil {
		_ = s.mailer.SendReportFailed(email, job.Type, jobID.String(), reason)
	}
}

func (s *NotificationService) deliver(ctx context.Context, notif model.Notification) {
	if err := s.repo.CreateNotification(ctx, &notif); err != nil {
		s.logger.Error("NotificationService", fmt.Sprintf("Error saving notification for user %s", notif.UserID), map[string]interface{}{
			"type":  notif.TypeCode,
			"error": err,
		})
	}
	// Pushed even when the row could not be stored.
	if s.delivery != nil {
		s.delivery.Send(notif.UserID, notif)
	}
}

func (s *NotificationService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("NotificationService", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err,
		})
	}
}

func (s *NotificationService) metadata(values map[string]interface{}) datatypes.JSON {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func notifyEmail(job *entity.ReportJob) string {
	email, _ := job.Params["notifyEmail"].(string)
	return strings.TrimSpace(email)
}

// GetNotifications fetches notifications for a user.
func (s *NotificationService) GetNotifications(ctx context.Context, userID string, limit, offset int) ([]model.Notification, int64, error) {
	if limit <= 0 {
		limit = constant.DefaultPageLimit
	}
	return s.repo.GetNotificationsByUserID(ctx, userID, limit, offset)
}

// GetUnreadCount fetches unread count.
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// MarkAsRead marks one of the user's notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID string, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, userID, id)
}

// MarkAllAsRead marks all notifications as read for a user.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}
