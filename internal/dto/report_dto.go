package dto

import (
	"time"
)

type GenerateReportRequest struct {
	Type     string                 `json:"type" validate:"required,max=50"`
	Format   string                 `json:"format" validate:"omitempty,oneof=pdf xlsx csv json"`
	TenantID string                 `json:"tenantId" validate:"omitempty,max=64"`
	Params   map[string]interface{} `json:"params"`
}

type ReportJobResponse struct {
	Id           string                 `json:"id"`
	Type         string                 `json:"type"`
	Format       string                 `json:"format"`
	TenantID     string                 `json:"tenantId"`
	Status       string                 `json:"status"`
	Progress     int                    `json:"progress"`
	Params       map[string]interface{} `json:"params,omitempty"`
	ReportRef    *string                `json:"reportRef,omitempty"`
	ErrorMessage *string                `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

type ReportJobIdRequest struct {
	Id string `json:"id" validate:"required,uuid"`
}

type ListReportJobsRequest struct {
	Status string `json:"status" validate:"omitempty,oneof=PENDING PROCESSING COMPLETED FAILED"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `json:"offset" validate:"omitempty,min=0"`
}

type ListReportJobsResponse struct {
	Items  []*ReportJobResponse `json:"items"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type CancelReportJobResponse struct {
	Id        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
}
