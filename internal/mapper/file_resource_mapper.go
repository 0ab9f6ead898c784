package mapper

import (
	"church-portal-be/internal/entity"
	"church-portal-be/internal/model"
)

type FileResourceMapper struct{}

func NewFileResourceMapper() *FileResourceMapper {
	return &FileResourceMapper{}
}

func (m *FileResourceMapper) ToEntity(f *model.FileResource) *entity.FileResource {
	if f == nil {
		return nil
	}
	return &entity.FileResource{
		Id:           f.Id,
		TenantId:     f.TenantId,
		OwnerId:      f.OwnerId,
		Kind:         f.Kind,
		Path:         f.Path,
		OriginalName: f.OriginalName,
		ContentType:  f.ContentType,
		SizeBytes:    f.SizeBytes,
		Backend:      f.Backend,
		CreatedAt:    f.CreatedAt,
	}
}

func (m *FileResourceMapper) ToModel(f *entity.FileResource) *model.FileResource {
	if f == nil {
		return nil
	}
	return &model.FileResource{
		Id:           f.Id,
		TenantId:     f.TenantId,
		OwnerId:      f.OwnerId,
		Kind:         f.Kind,
		Path:         f.Path,
		OriginalName: f.OriginalName,
		ContentType:  f.ContentType,
		SizeBytes:    f.SizeBytes,
		Backend:      f.Backend,
		CreatedAt:    f.CreatedAt,
	}
}
