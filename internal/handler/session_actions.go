package handler

import (
	"context"
	"time"

	"church-portal-be/internal/dto"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/rpc"
)

// SessionActions serves connection-level actions: credential attachment, group membership
// and liveness.
type SessionActions struct {
	verifier identity.Verifier
	logger   logger.ILogger
}

func NewSessionActions(verifier identity.Verifier, log logger.ILogger) *SessionActions {
	return &SessionActions{verifier: verifier, logger: log}
}

func (h *SessionActions) Register(reg *rpc.Registry) {
	rpc.Register(reg, "auth.attach", rpc.AuthNone, h.Attach)
	rpc.Register(reg, "sub.join", rpc.AuthAny, h.Join)
	rpc.Register(reg, "sub.leave", rpc.AuthAny, h.Leave)
	rpc.Register(reg, "ping", rpc.AuthNone, h.Ping)
}

func (h *SessionActions) Attach(ctx context.Context, call *rpc.Call, req dto.AttachRequest) (*dto.AttachResponse, error) {
	ident, err := h.verifier.Verify(ctx, req.Token)
	if err != nil {
		h.logger.Debug("SessionActions", "Token rejected", map[string]interface{}{
			"connection_id": call.Conn.ID(),
			"error":         err,
		})
		return nil, apperror.Unauthenticated("Invalid or expired token")
	}

	// Re-attaching replaces the previous identity and its derived groups.
	for _, group := range identity.Groups(call.Conn.Identity()) {
		call.Conn.Leave(group)
	}

	call.Conn.SetIdentity(ident)
	groups := identity.Groups(ident)
	for _, group := range groups {
		call.Conn.Join(group)
	}
	if groups == nil {
		groups = []string{}
	}

	h.logger.Info("SessionActions", "Identity attached", map[string]interface{}{
		"connection_id": call.Conn.ID(),
		"subject_id":    ident.SubjectID,
		"subject_kind":  ident.SubjectKind,
	})
	return &dto.AttachResponse{Identity: ident, Groups: groups}, nil
}

func (h *SessionActions) Join(_ context.Context, call *rpc.Call, req dto.GroupRequest) (*dto.GroupResponse, error) {
	call.Conn.Join(req.Group)
	return &dto.GroupResponse{Group: req.Group, Joined: true}, nil
}

func (h *SessionActions) Leave(_ context.Context, call *rpc.Call, req dto.GroupRequest) (*dto.GroupResponse, error) {
	call.Conn.Leave(req.Group)
	return &dto.GroupResponse{Group: req.Group, Joined: false}, nil
}

func (h *SessionActions) Ping(_ context.Context, _ *rpc.Call, _ struct{}) (*dto.PingResponse, error) {
	return &dto.PingResponse{Pong: true, Ts: time.Now().UnixMilli()}, nil
}
