package implementation

import (
	"context"
	"errors"
	"time"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/mapper"
	"church-portal-be/internal/model"
	"church-portal-be/internal/repository/contract"
	"church-portal-be/internal/repository/scope"
	"church-portal-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportJobRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ReportJobMapper
}

func NewReportJobRepository(db *gorm.DB) contract.ReportJobRepository {
	return &ReportJobRepositoryImpl{
		db:     db,
		mapper: mapper.NewReportJobMapper(),
	}
}

func (r *ReportJobRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ReportJobRepositoryImpl) Create(ctx context.Context, job *entity.ReportJob) error {
	if job.Id == uuid.Nil {
		job.Id = uuid.New()
	}
	m := r.mapper.ToModel(job)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*job = *r.mapper.ToEntity(m)
	return nil
}

func (r *ReportJobRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ReportJob, error) {
	var m model.ReportJob
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ReportJobRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ReportJob, error) {
	var models []*model.ReportJob
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ReportJobRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ReportJob{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ReportJobRepositoryImpl) ClaimNextPending(ctx context.Context) (*entity.ReportJob, error) {
	var candidates []*model.ReportJob
	err := r.db.WithContext(ctx).
		Where("status = ?", string(entity.ReportJobPending)).
		Scopes(scope.OrderByCreatedAsc).
		Limit(1).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	m := candidates[0]
	result := r.db.WithContext(ctx).
		Model(&model.ReportJob{}).
		Where("id = ? AND status = ?", m.Id, string(entity.ReportJobPending)).
		Updates(map[string]interface{}{
			"status":   string(entity.ReportJobProcessing),
			"progress": 10,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	m.Status = string(entity.ReportJobProcessing)
	m.Progress = 10
	return r.mapper.ToEntity(m), nil
}

func (r *ReportJobRepositoryImpl) MarkCompleted(ctx context.Context, id uuid.UUID, reportRef uuid.UUID, completedAt time.Time) error {
	return r.finishProcessing(ctx, id, map[string]interface{}{
		"status":       string(entity.ReportJobCompleted),
		"progress":     100,
		"report_ref":   reportRef,
		"completed_at": completedAt,
	})
}

func (r *ReportJobRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.finishProcessing(ctx, id, map[string]interface{}{
		"status":        string(entity.ReportJobFailed),
		"error_message": message,
	})
}

// finishProcessing only touches a job that is still PROCESSING, so terminal rows never change.
func (r *ReportJobRepositoryImpl) finishProcessing(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.ReportJob{}).
		Where("id = ? AND status = ?", id, string(entity.ReportJobProcessing)).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrJobNotProcessing
	}
	return nil
}

func (r *ReportJobRepositoryImpl) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, string(entity.ReportJobPending)).
		Delete(&model.ReportJob{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
