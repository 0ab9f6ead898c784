package contract

import (
	"context"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/repository/specification"
)

type FileResourceRepository interface {
	Create(ctx context.Context, file *entity.FileResource) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.FileResource, error)
}
