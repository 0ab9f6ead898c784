package contract

import (
	"context"
	"errors"
	"time"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ErrJobNotProcessing is returned when a terminal update targets a job that is no longer PROCESSING.
var ErrJobNotProcessing = errors.New("report job is not processing")

type ReportJobRepository interface {
	Create(ctx context.Context, job *entity.ReportJob) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ReportJob, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ReportJob, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// ClaimNextPending moves the oldest PENDING job to PROCESSING. It returns nil when
	// there is nothing to claim or another worker won the row.
	ClaimNextPending(ctx context.Context) (*entity.ReportJob, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, reportRef uuid.UUID, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	DeletePending(ctx context.Context, id uuid.UUID) (bool, error)
}
