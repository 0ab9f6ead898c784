package implementation

import (
	"context"
	"errors"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/mapper"
	"church-portal-be/internal/model"
	"church-portal-be/internal/repository/contract"
	"church-portal-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileResourceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.FileResourceMapper
}

func NewFileResourceRepository(db *gorm.DB) contract.FileResourceRepository {
	return &FileResourceRepositoryImpl{
		db:     db,
		mapper: mapper.NewFileResourceMapper(),
	}
}

func (r *FileResourceRepositoryImpl) Create(ctx context.Context, file *entity.FileResource) error {
	if file.Id == uuid.Nil {
		file.Id = uuid.New()
	}
	m := r.mapper.ToModel(file)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*file = *r.mapper.ToEntity(m)
	return nil
}

func (r *FileResourceRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.FileResource, error) {
	var m model.FileResource
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}
