package model

import (
	"time"

	"github.com/google/uuid"
)

type FileResource struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantId     string    `gorm:"type:varchar(64);not null;index"`
	OwnerId      string    `gorm:"type:varchar(64);not null"`
	Kind         string    `gorm:"type:varchar(20);not null"`
	Path         string    `gorm:"type:text;not null;uniqueIndex"`
	OriginalName string    `gorm:"type:varchar(255)"`
	ContentType  string    `gorm:"type:varchar(100);not null"`
	SizeBytes    int64     `gorm:"not null"`
	Backend      string    `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (FileResource) TableName() string {
	return "file_resources"
}
