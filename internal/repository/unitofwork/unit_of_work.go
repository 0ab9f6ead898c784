package unitofwork

import (
	"context"

	"church-portal-be/internal/repository"
	"church-portal-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ReportJobRepository() contract.ReportJobRepository
	FileResourceRepository() contract.FileResourceRepository
	NotificationRepository() repository.NotificationRepository
}
