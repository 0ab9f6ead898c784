package handler

import (
	"context"
	"errors"
	"time"

	"church-portal-be/internal/dto"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/model"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/serverutils"
	"church-portal-be/internal/rpc"
	"church-portal-be/internal/service"
	"church-portal-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	service   *service.NotificationService
	delivery  service.NotificationDelivery
	publisher service.EventPublisher
	logger    logger.ILogger
}

// NewNotificationHandler serves the inbox over REST and the realtime channel. publisher may be nil.
func NewNotificationHandler(svc *service.NotificationService, delivery service.NotificationDelivery, pub service.EventPublisher, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		service:   svc,
		delivery:  delivery,
		publisher: pub,
		logger:    log,
	}
}

// GetNotifications returns the user's notifications.
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	ident := serverutils.IdentityFrom(c)
	req := dto.ListNotificationsRequest{
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := h.list(c.UserContext(), ident.SubjectID, req)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Notifications", res))
}

// GetUnreadCount returns the number of unread notifications.
func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	ident := serverutils.IdentityFrom(c)
	count, err := h.service.GetUnreadCount(c.UserContext(), ident.SubjectID)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Unread count", dto.UnreadCountResponse{Count: count}))
}

// MarkAsRead marks a specific notification as read.
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	ident := serverutils.IdentityFrom(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperror.Validation("Invalid ID")
	}
	if err := h.markRead(c.UserContext(), ident.SubjectID, id); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Notification marked as read", fiber.Map{"id": id}))
}

// MarkAllAsRead marks all user's notifications as read.
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	ident := serverutils.IdentityFrom(c)
	updated, err := h.service.MarkAllAsRead(c.UserContext(), ident.SubjectID)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Notifications marked as read", dto.MarkAllReadResponse{Updated: updated}))
}

// Broadcast sends a system-wide notification to every connected client.
func (h *NotificationHandler) Broadcast(c *fiber.Ctx) error {
	ident := serverutils.IdentityFrom(c)
	if !ident.HasRole(identity.RoleSuperAdmin, identity.RoleAdmin) {
		return apperror.Forbidden("Insufficient role")
	}

	type Request struct {
		Title   string `json:"title" validate:"required,max=200"`
		Message string `json:"message" validate:"required,max=2000"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return apperror.Validation("Invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	h.delivery.Broadcast(model.Notification{
		ID:        uuid.New(),
		TypeCode:  "SYSTEM_BROADCAST",
		Title:     req.Title,
		Message:   req.Message,
		CreatedAt: time.Now(),
	})

	if h.publisher != nil {
		evt := events.NewEvent("SYSTEM_BROADCAST", map[string]interface{}{
			"title":   req.Title,
			"message": req.Message,
			"sent_by": ident.SubjectID,
		})
		if err := h.publisher.Publish(c.UserContext(), evt); err != nil {
			h.logger.Warn("NotificationHandler", "Failed to publish broadcast event", map[string]interface{}{"error": err})
		}
	}

	return c.JSON(serverutils.SuccessResponse("Broadcast sent", fiber.Map{"delivered": true}))
}

// RegisterRoutes registers the notification routes.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	notif := router.Group("/notifications")
	notif.Use(auth)
	notif.Get("/", h.GetNotifications)
	notif.Get("/unread-count", h.GetUnreadCount)
	notif.Patch("/read-all", h.MarkAllAsRead)
	notif.Patch("/:id/read", h.MarkAsRead)
	notif.Post("/broadcast", h.Broadcast)
}

// RegisterActions exposes the inbox on the realtime channel.
func (h *NotificationHandler) RegisterActions(reg *rpc.Registry) {
	rpc.Register(reg, "notification.list", rpc.AuthAny, func(ctx context.Context, call *rpc.Call, req dto.ListNotificationsRequest) (*dto.ListNotificationsResponse, error) {
		return h.list(ctx, call.Identity.SubjectID, req)
	})
	rpc.Register(reg, "notification.unreadCount", rpc.AuthAny, func(ctx context.Context, call *rpc.Call, _ struct{}) (*dto.UnreadCountResponse, error) {
		count, err := h.service.GetUnreadCount(ctx, call.Identity.SubjectID)
		if err != nil {
			return nil, err
		}
		return &dto.UnreadCountResponse{Count: count}, nil
	})
	rpc.Register(reg, "notification.markRead", rpc.AuthAny, func(ctx context.Context, call *rpc.Call, req dto.MarkNotificationReadRequest) (*dto.UnreadCountResponse, error) {
		if err := h.markRead(ctx, call.Identity.SubjectID, uuid.MustParse(req.Id)); err != nil {
			return nil, err
		}
		count, err := h.service.GetUnreadCount(ctx, call.Identity.SubjectID)
		if err != nil {
			return nil, err
		}
		return &dto.UnreadCountResponse{Count: count}, nil
	})
	rpc.Register(reg, "notification.markAllRead", rpc.AuthAny, func(ctx context.Context, call *rpc.Call, _ struct{}) (*dto.MarkAllReadResponse, error) {
		updated, err := h.service.MarkAllAsRead(ctx, call.Identity.SubjectID)
		if err != nil {
			return nil, err
		}
		return &dto.MarkAllReadResponse{Updated: updated}, nil
	})
}

func (h *NotificationHandler) list(ctx context.Context, userID string, req dto.ListNotificationsRequest) (*dto.ListNotificationsResponse, error) {
	items, total, err := h.service.GetNotifications(ctx, userID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if items == nil {
		items = []model.Notification{}
	}
	return &dto.ListNotificationsResponse{Items: items, Total: total, Limit: limit, Offset: req.Offset}, nil
}

func (h *NotificationHandler) markRead(ctx context.Context, userID string, id uuid.UUID) error {
	err := h.service.MarkAsRead(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("Notification not found")
	}
	return err
}
