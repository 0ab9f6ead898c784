package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ReportJob struct {
	Id           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Type         string         `gorm:"type:varchar(50);not null"`
	Format       string         `gorm:"type:varchar(10);not null"`
	RequesterId  string         `gorm:"type:varchar(64);not null;index"`
	TenantId     string         `gorm:"type:varchar(64);not null;index"`
	Status       string         `gorm:"type:varchar(20);not null;index:idx_report_jobs_status_created,priority:1"`
	Progress     int            `gorm:"not null;default:0"`
	Params       datatypes.JSON `gorm:"type:jsonb"`
	ReportRef    *uuid.UUID     `gorm:"type:uuid"`
	ErrorMessage *string        `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index:idx_report_jobs_status_created,priority:2"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
	CompletedAt  *time.Time
}

func (ReportJob) TableName() string {
	return "report_jobs"
}
