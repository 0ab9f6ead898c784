package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReportJobStatus string

const (
	ReportJobPending    ReportJobStatus = "PENDING"
	ReportJobProcessing ReportJobStatus = "PROCESSING"
	ReportJobCompleted  ReportJobStatus = "COMPLETED"
	ReportJobFailed     ReportJobStatus = "FAILED"
)

func (s ReportJobStatus) IsTerminal() bool {
	return s == ReportJobCompleted || s == ReportJobFailed
}

type ReportJob struct {
	Id           uuid.UUID
	Type         string
	Format       string
	RequesterId  string
	TenantId     string
	Status       ReportJobStatus
	Progress     int
	Params       map[string]interface{}
	ReportRef    *uuid.UUID
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
