package handler

import (
	"context"

	"church-portal-be/internal/dto"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/rpc"
	"church-portal-be/internal/service"

	"github.com/google/uuid"
)

type ReportActions struct {
	service service.IReportJobService
}

func NewReportActions(service service.IReportJobService) *ReportActions {
	return &ReportActions{service: service}
}

func (h *ReportActions) Register(reg *rpc.Registry) {
	rpc.Register(reg, "report.generate",
		rpc.AuthRoles(identity.RoleAdmin, identity.RoleChurchAdmin, identity.RoleTreasurer, identity.RoleSuperAdmin),
		h.Generate)
	rpc.Register(reg, "reportJob.list", rpc.AuthAny, h.List)
	rpc.Register(reg, "reportJob.get", rpc.AuthAny, h.Get)
	rpc.Register(reg, "reportJob.cancel", rpc.AuthAny, h.Cancel)
}

func (h *ReportActions) Generate(ctx context.Context, call *rpc.Call, req dto.GenerateReportRequest) (*dto.ReportJobResponse, error) {
	return h.service.Create(ctx, call.Identity, &req)
}

func (h *ReportActions) List(ctx context.Context, call *rpc.Call, req dto.ListReportJobsRequest) (*dto.ListReportJobsResponse, error) {
	return h.service.List(ctx, call.Identity, &req)
}

func (h *ReportActions) Get(ctx context.Context, call *rpc.Call, req dto.ReportJobIdRequest) (*dto.ReportJobResponse, error) {
	return h.service.Get(ctx, call.Identity, uuid.MustParse(req.Id))
}

func (h *ReportActions) Cancel(ctx context.Context, call *rpc.Call, req dto.ReportJobIdRequest) (*dto.CancelReportJobResponse, error) {
	if err := h.service.Cancel(ctx, call.Identity, uuid.MustParse(req.Id)); err != nil {
		return nil, err
	}
	return &dto.CancelReportJobResponse{Id: req.Id, Cancelled: true}, nil
}
