package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	FileKindGeneral = "file"
	FileKindCover   = "cover"
	FileKindReport  = "report"
)

type FileResource struct {
	Id           uuid.UUID
	TenantId     string
	OwnerId      string
	Kind         string
	Path         string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	Backend      string
	CreatedAt    time.Time
}
