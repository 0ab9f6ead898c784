package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"church-portal-be/internal/constant"
	"church-portal-be/internal/dto"
	"church-portal-be/internal/entity"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/repository/specification"
	"church-portal-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type IReportJobService interface {
	Create(ctx context.Context, requester *identity.Identity, req *dto.GenerateReportRequest) (*dto.ReportJobResponse, error)
	Get(ctx context.Context, requester *identity.Identity, id uuid.UUID) (*dto.ReportJobResponse, error)
	List(ctx context.Context, requester *identity.Identity, req *dto.ListReportJobsRequest) (*dto.ListReportJobsResponse, error)
	Cancel(ctx context.Context, requester *identity.Identity, id uuid.UUID) error
}

type reportJobService struct {
	uowFactory unitofwork.RepositoryFactory
	wake       message.Publisher
	wakeTopic  string
	logger     logger.ILogger
}

// NewReportJobService builds the enqueue side of the report queue. wake may be nil.
func NewReportJobService(uowFactory unitofwork.RepositoryFactory, wake message.Publisher, wakeTopic string, log logger.ILogger) IReportJobService {
	return &reportJobService{
		uowFactory: uowFactory,
		wake:       wake,
		wakeTopic:  wakeTopic,
		logger:     log,
	}
}

func (s *reportJobService) Create(ctx context.Context, requester *identity.Identity, req *dto.GenerateReportRequest) (*dto.ReportJobResponse, error) {
	if requester == nil {
		return nil, apperror.Unauthenticated("Authentication required")
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = requester.TenantID
	}
	if tenantID == "" {
		return nil, apperror.Validation("tenantId is required")
	}
	if !requester.CanAccessTenant(tenantID) {
		return nil, apperror.Forbidden("Access to this tenant is not allowed")
	}

	format := req.Format
	if format == "" {
		format = constant.ReportDefaultFormat
	}
	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	job := &entity.ReportJob{
		Id:          uuid.New(),
		Type:        strings.ToUpper(strings.TrimSpace(req.Type)),
		Format:      format,
		RequesterId: requester.SubjectID,
		TenantId:    tenantID,
		Status:      entity.ReportJobPending,
		Params:      params,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ReportJobRepository().Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create report job: %w", err)
	}

	s.logger.Info("ReportJobService", "Report job queued", map[string]interface{}{
		"job_id":    job.Id.String(),
		"type":      job.Type,
		"tenant_id": job.TenantId,
	})
	s.signal(job.Id)

	return toReportJobResponse(job), nil
}

// signal nudges the worker so it does not wait for the next scheduled tick.
func (s *reportJobService) signal(jobID uuid.UUID) {
	if s.wake == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"job_id": jobID.String()})
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.wake.Publish(s.wakeTopic, msg); err != nil {
		s.logger.Warn("ReportJobService", "Failed to signal report worker", map[string]interface{}{"error": err})
	}
}

func (s *reportJobService) Get(ctx context.Context, requester *identity.Identity, id uuid.UUID) (*dto.ReportJobResponse, error) {
	job, err := s.findOwned(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	return toReportJobResponse(job), nil
}

func (s *reportJobService) List(ctx context.Context, requester *identity.Identity, req *dto.ListReportJobsRequest) (*dto.ListReportJobsResponse, error) {
	if requester == nil {
		return nil, apperror.Unauthenticated("Authentication required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = constant.DefaultPageLimit
	}

	filters := []specification.Specification{specification.ByRequesterID{RequesterID: requester.SubjectID}}
	if req.Status != "" {
		filters = append(filters, specification.ByStatus{Status: req.Status})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.ReportJobRepository()

	total, err := repo.Count(ctx, filters...)
	if err != nil {
		return nil, fmt.Errorf("count report jobs: %w", err)
	}
	jobs, err := repo.FindAll(ctx, append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: req.Offset},
	)...)
	if err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}

	items := make([]*dto.ReportJobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toReportJobResponse(job))
	}
	return &dto.ListReportJobsResponse{Items: items, Total: total, Limit: limit, Offset: req.Offset}, nil
}

func (s *reportJobService) Cancel(ctx context.Context, requester *identity.Identity, id uuid.UUID) error {
	job, err := s.findOwned(ctx, requester, id)
	if err != nil {
		return err
	}
	if job.Status != entity.ReportJobPending {
		return apperror.Validation("Only pending jobs can be cancelled")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.ReportJobRepository().DeletePending(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel report job: %w", err)
	}
	if !deleted {
		// The worker claimed it between the read and the delete.
		return apperror.Validation("Only pending jobs can be cancelled")
	}

	s.logger.Info("ReportJobService", "Report job cancelled", map[string]interface{}{"job_id": id.String()})
	return nil
}

func (s *reportJobService) findOwned(ctx context.Context, requester *identity.Identity, id uuid.UUID) (*entity.ReportJob, error) {
	if requester == nil {
		return nil, apperror.Unauthenticated("Authentication required")
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	job, err := uow.ReportJobRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, fmt.Errorf("find report job: %w", err)
	}
	if job == nil {
		return nil, apperror.NotFound("Report job not found")
	}
	if job.RequesterId != requester.SubjectID {
		return nil, apperror.Forbidden("Report job belongs to another user")
	}
	return job, nil
}

func toReportJobResponse(job *entity.ReportJob) *dto.ReportJobResponse {
	res := &dto.ReportJobResponse{
		Id:           job.Id.String(),
		Type:         job.Type,
		Format:       job.Format,
		TenantID:     job.TenantId,
		Status:       string(job.Status),
		Progress:     job.Progress,
		Params:       job.Params,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.ReportRef != nil {
		ref := job.ReportRef.String()
		res.ReportRef = &ref
	}
	return res
}
